package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:   	Announce the AirCopy TCP air link using DNS-SD.
 *
 * Description:
 *
 *     When two simulated radios are linked over the network, the
 *     receiving end can be found automatically rather than typing in
 *     an address and port.
 *
 *     This uses the pure-Go github.com/brutella/dnssd package for
 *     cross-platform mDNS/DNS-SD service announcement without requiring
 *     any system daemon or C library dependencies.
 */

import (
	"context"
	"os"
	"strings"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

const DNS_SD_SERVICE = "_aircopy._tcp"

/* Default service name is "AirCopy on <hostname>", or just "AirCopy"
 * if hostname cannot be obtained.
 */
func dnsSDDefaultServiceName() string {
	var hostname, hostnameErr = os.Hostname()
	if hostnameErr != nil {
		return "AirCopy"
	}

	// on some systems, an FQDN is returned; remove domain part
	hostname, _, _ = strings.Cut(hostname, ".")

	return "AirCopy on " + hostname
}

// dnsSDAnnounce publishes the listening port until ctx is done.
// Failures are logged, the link works without it.
func dnsSDAnnounce(ctx context.Context, logger *log.Logger, name string, port int) {
	if name == "" {
		name = dnsSDDefaultServiceName()
	}

	var cfg = dnssd.Config{ //nolint:exhaustruct
		Name: name,
		Type: DNS_SD_SERVICE,
		Port: port,
	}

	var sv, svErr = dnssd.NewService(cfg)
	if svErr != nil {
		logger.Error("DNS-SD: Failed to create service", "err", svErr)
		return
	}

	var rp, rpErr = dnssd.NewResponder()
	if rpErr != nil {
		logger.Error("DNS-SD: Failed to create responder", "err", rpErr)
		return
	}

	var _, addErr = rp.Add(sv)
	if addErr != nil {
		logger.Error("DNS-SD: Failed to add service", "err", addErr)
		return
	}

	logger.Info("DNS-SD: Announcing AirCopy link", "port", port, "name", name)

	go func() {
		var respondErr = rp.Respond(ctx)
		if respondErr != nil && ctx.Err() == nil {
			logger.Error("DNS-SD: Responder error", "err", respondErr)
		}
	}()
}
