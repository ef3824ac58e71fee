package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	Switch the transmit power amplifier on and off.
 *
 * Description:	When the modem is an external box the PA enable is
 *		usually wired to something we can drive directly:
 *
 *		rts:/dev/ttyUSB1	RTS line of a serial port.
 *		dtr:/dev/ttyUSB1	DTR line of a serial port.
 *		gpio:gpiochip0:17	A GPIO line, e.g. on a Raspberry Pi.
 *		none			Nothing to do (loopback, TCP link).
 *
 *		Put "-" in front of the line name to invert it,
 *		e.g. "-rts:/dev/ttyUSB1" or "gpio:gpiochip0:-17".
 *
 *		The PA is switched off when opened and when closed, so
 *		we never leave it energised.
 *
 *------------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
)

// PowerAmp is the PA enable output.
type PowerAmp interface {
	Set(on bool) error
	Close() error
}

type noPowerAmp struct{}

func (noPowerAmp) Set(bool) error { return nil }
func (noPowerAmp) Close() error   { return nil }

// OpenPowerAmp parses one of the forms above.
func OpenPowerAmp(spec string) (PowerAmp, error) {
	if spec == "" || spec == "none" {
		return noPowerAmp{}, nil
	}

	var kind, rest, found = strings.Cut(spec, ":")
	if !found {
		return nil, fmt.Errorf("power amp %q: expected kind:device", spec)
	}

	var invert = strings.HasPrefix(kind, "-")
	kind = strings.TrimPrefix(kind, "-")

	var pa PowerAmp
	var err error

	switch kind {
	case "rts":
		pa, err = openSerialLinePA(rest, unix.TIOCM_RTS, invert)
	case "dtr":
		pa, err = openSerialLinePA(rest, unix.TIOCM_DTR, invert)
	case "gpio":
		pa, err = openGPIOPA(rest, invert)
	default:
		return nil, fmt.Errorf("power amp %q: unknown kind %q", spec, kind)
	}
	if err != nil {
		return nil, err
	}

	if err := pa.Set(false); err != nil {
		pa.Close()
		return nil, err
	}

	return pa, nil
}

// serialLinePA drives a modem control line of a serial port.
type serialLinePA struct {
	f      *os.File
	bit    int
	invert bool
}

func openSerialLinePA(device string, bit int, invert bool) (*serialLinePA, error) {
	var f, err = os.OpenFile(device, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("power amp: %w", err)
	}
	return &serialLinePA{f: f, bit: bit, invert: invert}, nil
}

func (p *serialLinePA) Set(on bool) error {
	var fd = int(p.f.Fd())

	var stuff, err = unix.IoctlGetInt(fd, unix.TIOCMGET)
	if err != nil {
		return fmt.Errorf("power amp %s: TIOCMGET: %w", p.f.Name(), err)
	}

	if on != p.invert {
		stuff |= p.bit
	} else {
		stuff &= ^p.bit
	}

	if err := unix.IoctlSetPointerInt(fd, unix.TIOCMSET, stuff); err != nil {
		return fmt.Errorf("power amp %s: TIOCMSET: %w", p.f.Name(), err)
	}

	return nil
}

func (p *serialLinePA) Close() error {
	return errors.Join(p.Set(false), p.f.Close())
}

// gpioOutputLine is what we need from a gpiocdev line.
type gpioOutputLine interface {
	SetValue(v int) error
	Close() error
}

type gpioPA struct {
	line   gpioOutputLine
	invert bool
}

func openGPIOPA(spec string, invert bool) (*gpioPA, error) {
	var chip, offsetStr, found = strings.Cut(spec, ":")
	if !found {
		return nil, fmt.Errorf("power amp gpio %q: expected chip:line", spec)
	}

	if strings.HasPrefix(offsetStr, "-") {
		invert = !invert
		offsetStr = offsetStr[1:]
	}

	var offset, err = strconv.Atoi(offsetStr)
	if err != nil {
		return nil, fmt.Errorf("power amp gpio %q: %w", spec, err)
	}

	var initial = 0
	if invert {
		initial = 1
	}

	var line, reqErr = gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(initial), gpiocdev.WithConsumer("aircopy"))
	if reqErr != nil {
		return nil, fmt.Errorf("power amp gpio %q: %w", spec, reqErr)
	}

	return &gpioPA{line: line, invert: invert}, nil
}

func (p *gpioPA) Set(on bool) error {
	var v = 0
	if on != p.invert {
		v = 1
	}
	return p.line.SetValue(v)
}

func (p *gpioPA) Close() error {
	return errors.Join(p.Set(false), p.line.Close())
}
