package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	Present the old 64K "EEPROM" address space to the rest of
 *		the firmware while the data really lives in SPI flash.
 *
 * Description:	Channel and settings layouts were designed around a
 *		serial EEPROM.  Newer radios keep the same logical
 *		addresses but store everything in a 2 MB flash part with
 *		4K erase sectors, so every access goes through a table of
 *		mappings.
 *
 *		A logical address covered by no mapping is a "hole".
 *		Reads of a hole give 0xFF, writes are silently dropped.
 *		This keeps addresses stable when regions move or are no
 *		longer backed, e.g. the tail padding of the settings map.
 *
 *		Write operations are inherently inefficient on flash.
 *		Writes are always 8 bytes, and the flash is told when a
 *		write reaches the end of a mapping so it can commit the
 *		sector instead of waiting for more.
 *
 *------------------------------------------------------------------*/

import (
	"errors"
	"fmt"
)

// HoleAddr as a flash address means "not backed".
const HoleAddr uint32 = 0x1000000

// WriteGranule is the number of bytes every WriteBuffer call stores.
const WriteGranule = 8

const eepromSize = 0x10000

var ErrAddressOverflow = errors.New("request runs past end of logical address space")

// Flash is the raw storage device the translator writes through.
type Flash interface {
	ReadBuffer(addr uint32, buf []byte) error

	// end is a hint that this write completes a mapped region.
	WriteBuffer(addr uint32, buf []byte, end bool) error
}

// AddrMapping places Size logical bytes starting at EEPROMAddr at FlashAddr.
type AddrMapping struct {
	FlashAddr  uint32
	EEPROMAddr uint16
	Size       uint16
}

func mkMapping(flashAddr uint32, from uint32, to uint32) AddrMapping {
	return AddrMapping{FlashAddr: flashAddr, EEPROMAddr: uint16(from), Size: uint16(to - from)}
}

// DefaultAddrMappings is the F4HWN layout.  Comments give what used to be
// the EEPROM location.
var DefaultAddrMappings = []AddrMapping{
	mkMapping(0x000000, 0x000000, 0x001000), // 256 MR Freq * 16 Bytes (ex 0x000000)
	mkMapping(0x001000, 0x001000, 0x002000), // 256 MR Freq * 16 Bytes
	mkMapping(0x002000, 0x002000, 0x003000), // 256 MR Freq * 16 Bytes
	mkMapping(0x003000, 0x003000, 0x004000), // 256 MR Freq * 16 Bytes

	mkMapping(0x004000, 0x004000, 0x005000), // 256 MR Name * 16 Bytes (ex 0x00e000)
	mkMapping(0x005000, 0x005000, 0x006000), // 256 MR Name * 16 Bytes
	mkMapping(0x006000, 0x006000, 0x007000), // 256 MR Name * 16 Bytes
	mkMapping(0x007000, 0x007000, 0x008000), // 256 MR Name * 16 Bytes

	mkMapping(0x008000, 0x008000, 0x00880E), // 1024 MR + 7 VFO Attributes * 2 Bytes (ex 0x002000)

	mkMapping(0x009000, 0x009000, 0x0090D6), // 14 VFO * 16 Bytes (ex 0x001000)

	mkMapping(0x00A000, 0x00A000, 0x00A160), // Settings, FM, scan lists, AES key, F4HWN (ex 0x004000 - 0x00C000)

	mkMapping(0x010000, 0x00B000, 0x00B200), // Calibration 512 Bytes, kept away from everything else
}

// Translation is the result of looking up one logical address.
type Translation struct {
	FlashAddr uint32 // HoleAddr when Hole.
	Size      uint16 // Bytes covered, at most what was asked for.
	Hole      bool
	End       bool // Size reaches the end of a backed mapping.
}

// EEPROM is the logical address space on top of a Flash.
type EEPROM struct {
	flash    Flash
	mappings []AddrMapping
}

// NewEEPROM uses DefaultAddrMappings when mappings is nil.
func NewEEPROM(flash Flash, mappings []AddrMapping) *EEPROM {
	if mappings == nil {
		mappings = DefaultAddrMappings
	}
	return &EEPROM{flash: flash, mappings: mappings}
}

/*------------------------------------------------------------------
 *
 * Name:	Translate
 *
 * Purpose:	Find where a logical address lives.
 *
 * Inputs:	addr	- Logical address.
 *		size	- Number of bytes wanted from there.
 *
 * Returns:	Flash address (or hole) and how many of the bytes can be
 *		handled in one go.  First matching mapping wins.
 *		This never fails.
 *
 *------------------------------------------------------------------*/

func (e *EEPROM) Translate(addr uint16, size uint16) Translation {
	for _, m := range e.mappings {
		var start = uint32(m.EEPROMAddr)
		var a = uint32(addr)
		if a < start || a >= start+uint32(m.Size) {
			continue
		}

		var off = a - start
		var rem = uint32(m.Size) - off
		var n = uint32(size)
		if n > rem {
			n = rem
		}

		if m.FlashAddr == HoleAddr {
			return Translation{FlashAddr: HoleAddr, Size: uint16(n), Hole: true}
		}

		return Translation{
			FlashAddr: m.FlashAddr + off,
			Size:      uint16(n),
			End:       n == rem,
		}
	}

	return Translation{FlashAddr: HoleAddr, Size: size, Hole: true}
}

// ReadBuffer fills buf from logical address addr.  Holes read as 0xFF.
func (e *EEPROM) ReadBuffer(addr uint16, buf []byte) error {
	if int(addr)+len(buf) > eepromSize {
		return fmt.Errorf("read 0x%04X+%d: %w", addr, len(buf), ErrAddressOverflow)
	}

	var a = addr
	for len(buf) > 0 {
		var want = len(buf)
		if want > 0xFFFF {
			want = 0xFFFF
		}
		var t = e.Translate(a, uint16(want))
		var chunk = buf[:t.Size]

		if t.Hole {
			for i := range chunk {
				chunk[i] = 0xFF
			}
		} else if err := e.flash.ReadBuffer(t.FlashAddr, chunk); err != nil {
			return fmt.Errorf("read 0x%04X from flash 0x%06X: %w", a, t.FlashAddr, err)
		}

		a += t.Size
		buf = buf[t.Size:]
	}

	return nil
}

// WriteBuffer stores exactly WriteGranule bytes from buf at logical address
// addr.  Anything past the first WriteGranule bytes of buf is ignored;
// callers split larger writes themselves.
func (e *EEPROM) WriteBuffer(addr uint16, buf []byte) error {
	if len(buf) < WriteGranule {
		return fmt.Errorf("write 0x%04X: need %d bytes, got %d", addr, WriteGranule, len(buf))
	}
	if int(addr)+WriteGranule > eepromSize {
		return fmt.Errorf("write 0x%04X: %w", addr, ErrAddressOverflow)
	}

	buf = buf[:WriteGranule]

	var a = addr
	for len(buf) > 0 {
		var t = e.Translate(a, uint16(len(buf)))

		if !t.Hole {
			if err := e.flash.WriteBuffer(t.FlashAddr, buf[:t.Size], t.End); err != nil {
				return fmt.Errorf("write 0x%04X to flash 0x%06X: %w", a, t.FlashAddr, err)
			}
		}

		a += t.Size
		buf = buf[t.Size:]
	}

	return nil
}
