package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	External FSK modem on a serial port, or a pseudo terminal.
 *
 * Description:	The modem takes the 72 byte wire form of each packet and
 *		puts it on the air, and hands back whatever it hears.
 *		It does its own bit sync so all we see are bytes.
 *
 *		With "pty" we create a pseudo terminal instead and print
 *		the name of the slave side so another program (or a
 *		second aircopy) can be attached to it.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"os"

	"github.com/creack/pty"
	"github.com/pkg/term"
)

// SerialRadio is a Radio behind a serial FSK modem.
type SerialRadio struct {
	*streamRadio
	name string
}

// OpenSerialRadio opens devicename at baud, raw mode.
func OpenSerialRadio(devicename string, baud int, rx *RxBuffer, opts StreamOptions) (*SerialRadio, error) {
	var fd, err = term.Open(devicename, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("could not open serial port %s: %w", devicename, err)
	}

	switch baud {
	case 0: /* Leave it alone. */
	case 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200:
		if err := fd.SetSpeed(baud); err != nil {
			fd.Close()
			return nil, fmt.Errorf("serial port %s speed %d: %w", devicename, baud, err)
		}
	default:
		fd.Close()
		return nil, fmt.Errorf("serial port %s: unsupported speed %d", devicename, baud)
	}

	if opts.Logger != nil {
		opts.Logger.Info("Opened modem", "port", devicename, "baud", baud)
	}

	return &SerialRadio{streamRadio: newStreamRadio(fd, rx, opts), name: devicename}, nil
}

// OpenPtyRadio creates a pseudo terminal.  The slave side is left open
// so the master doesn't see a hangup before anybody attaches.
func OpenPtyRadio(rx *RxBuffer, opts StreamOptions) (*SerialRadio, *os.File, error) {
	var ptmx, pts, err = pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("could not create pseudo terminal: %w", err)
	}

	if opts.Logger != nil {
		opts.Logger.Info("Virtual modem is available", "pty", pts.Name())
	}

	return &SerialRadio{streamRadio: newStreamRadio(ptmx, rx, opts), name: pts.Name()}, pts, nil
}

// Name is the device, or the slave side for a pty.
func (s *SerialRadio) Name() string {
	return s.name
}
