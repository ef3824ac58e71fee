package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	Join two simulated radios over TCP.
 *
 * Description:	One side listens (optionally announcing itself with
 *		DNS-SD), the other dials.  Whatever one side transmits
 *		the other receives.  Handy for trying a transfer between
 *		two flash images without any radio hardware.
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"net"

	"github.com/charmbracelet/log"
)

// NetRadio is a Radio whose "air" is a TCP connection.
type NetRadio struct {
	*streamRadio
	conn net.Conn
}

// NetListener waits for the other radio.
type NetListener struct {
	ln     net.Listener
	logger *log.Logger
}

// ListenNet listens on addr.  If announce is true the port is published
// with DNS-SD under name for as long as ctx lasts.
func ListenNet(ctx context.Context, addr string, announce bool, name string, logger *log.Logger) (*NetListener, error) {
	if logger == nil {
		logger = discardLogger()
	}

	var lc net.ListenConfig
	var ln, err = lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	if announce {
		if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
			dnsSDAnnounce(ctx, logger, name, tcpAddr.Port)
		}
	}

	return &NetListener{ln: ln, logger: logger}, nil
}

func (l *NetListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept waits for one peer.
func (l *NetListener) Accept(ctx context.Context, rx *RxBuffer, opts StreamOptions) (*NetRadio, error) {
	l.logger.Info("Waiting for peer", "addr", l.ln.Addr().String())

	// Accept doesn't take a context.
	var stop = context.AfterFunc(ctx, func() { l.ln.Close() })
	defer stop()

	var conn, err = l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("accept on %s: %w", l.ln.Addr(), err)
	}

	l.logger.Info("Peer connected", "remote", conn.RemoteAddr().String())

	if opts.Logger == nil {
		opts.Logger = l.logger
	}

	return &NetRadio{streamRadio: newStreamRadio(conn, rx, opts), conn: conn}, nil
}

func (l *NetListener) Close() error {
	return l.ln.Close()
}

// DialNet connects to a radio waiting in Accept.
func DialNet(ctx context.Context, addr string, rx *RxBuffer, opts StreamOptions) (*NetRadio, error) {
	var d net.Dialer
	var conn, err = d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return &NetRadio{streamRadio: newStreamRadio(conn, rx, opts), conn: conn}, nil
}

// RemoteAddr is the peer's address.
func (n *NetRadio) RemoteAddr() net.Addr {
	return n.conn.RemoteAddr()
}
