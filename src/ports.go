package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	Find serial ports that might have a modem on them.
 *
 * Description:	Most FSK modems and programming cables are USB serial
 *		adapters, so we list tty devices with a USB parent,
 *		along with the vendor and product so the user can tell
 *		them apart.  Based on the udev enumeration used for
 *		finding CM108 sound cards.
 *
 *------------------------------------------------------------------*/

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"github.com/jochenvg/go-udev"
)

type SerialPort struct {
	Devnode string // e.g. /dev/ttyUSB0
	VID     string
	PID     string
	Product string
	Serial  string
}

// ListSerialPorts returns the USB serial ports, sorted by device name.
func ListSerialPorts() ([]SerialPort, error) {
	var u udev.Udev

	var e = u.NewEnumerate()
	if err := e.AddMatchSubsystem("tty"); err != nil {
		return nil, fmt.Errorf("udev match: %w", err)
	}

	var devices, err = e.Devices()
	if err != nil {
		return nil, fmt.Errorf("udev enumerate: %w", err)
	}

	var ports []SerialPort
	for _, dev := range devices {
		var devnode = dev.Devnode()
		if devnode == "" {
			continue
		}

		var parent = dev.ParentWithSubsystemDevtype("usb", "usb_device")
		if parent == nil {
			continue // Built in ports, virtual consoles, ...
		}

		ports = append(ports, SerialPort{
			Devnode: devnode,
			VID:     parent.SysattrValue("idVendor"),
			PID:     parent.SysattrValue("idProduct"),
			Product: parent.SysattrValue("product"),
			Serial:  parent.SysattrValue("serial"),
		})
	}

	sortPorts(ports)

	return ports, nil
}

func sortPorts(ports []SerialPort) {
	slices.SortFunc(ports, func(a, b SerialPort) int {
		return cmp.Compare(a.Devnode, b.Devnode)
	})
}

// PrintPorts writes one line per port.
func PrintPorts(w io.Writer, ports []SerialPort) {
	if len(ports) == 0 {
		fmt.Fprintf(w, "No USB serial ports found.\n")
		return
	}

	fmt.Fprintf(w, "    VID  PID   Port             Product\n")
	for _, p := range ports {
		var product = p.Product
		if p.Serial != "" {
			product += " (" + p.Serial + ")"
		}
		fmt.Fprintf(w, "    %4s %4s  %-16s %s\n", p.VID, p.PID, p.Devnode, product)
	}
}
