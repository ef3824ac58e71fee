package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	Which EEPROM regions make up one AirCopy operation.
 *
 * Description:	Channels are copied a bank of 128 at a time.  A bank
 *		is three separate regions: frequencies (16 bytes per
 *		channel), names (16 bytes per channel) and attributes
 *		(2 bytes per channel).  The settings area is copied as
 *		one more map.
 *
 *		total_blocks = 68 (blocks of 64 bytes) because
 *		(16 bytes + 16 bytes + 2 bytes) * 128 = 4352 / 64 = 68
 *
 *		Settings are 0x160 bytes, 5.5 blocks.  The sixth block
 *		runs into the unbacked tail after 0xA160 which reads as
 *		0xFF and is dropped on write.
 *
 *------------------------------------------------------------------*/

import "fmt"

// WriteMode says what shape of data a segment holds.  Both shapes are
// currently written the same way.
type WriteMode int

const (
	WriteStruct WriteMode = iota // frequencies, names
	WriteBytes                   // attributes, settings
)

func (m WriteMode) String() string {
	switch m {
	case WriteStruct:
		return "struct"
	case WriteBytes:
		return "bytes"
	default:
		return fmt.Sprintf("WriteMode(%d)", int(m))
	}
}

// Segment is the logical range [Start, End).
type Segment struct {
	Start uint16
	End   uint16
	Mode  WriteMode
}

// Contains reports whether off is inside the segment.
func (s Segment) Contains(off uint16) bool {
	return off >= s.Start && off < s.End
}

// TransferMap is one complete AirCopy operation.
type TransferMap struct {
	Name        string
	Bank        int // -1 for settings
	Segments    []Segment
	TotalBlocks uint16
}

const (
	ChannelsPerBank = 128

	bankBlocks     = 68
	settingsBlocks = 6

	// Largest TotalBlocks of any map, sizes the error bitmap.
	maxMapBlocks = bankBlocks
)

// Contains reports whether off is inside any segment.
func (m *TransferMap) Contains(off uint16) bool {
	for _, seg := range m.Segments {
		if seg.Contains(off) {
			return true
		}
	}
	return false
}

// FindSegment returns the segment containing off, or nil.
func (m *TransferMap) FindSegment(off uint16) *Segment {
	for i := range m.Segments {
		if m.Segments[i].Contains(off) {
			return &m.Segments[i]
		}
	}
	return nil
}

// Label is what the radio shows while the map is selected.
func (m *TransferMap) Label() string {
	if m.Bank < 0 {
		return "Settings"
	}
	return fmt.Sprintf("MEM %03d - %03d", m.Bank*ChannelsPerBank+1, (m.Bank+1)*ChannelsPerBank)
}

func bankMap(bank int) *TransferMap {
	var b = uint16(bank)
	return &TransferMap{
		Name: fmt.Sprintf("bank%d", bank),
		Bank: bank,
		Segments: []Segment{
			{0x0000 + b*0x0800, 0x0000 + b*0x0800 + 0x0800, WriteStruct},
			{0x4000 + b*0x0800, 0x4000 + b*0x0800 + 0x0800, WriteStruct},
			{0x8000 + b*0x0100, 0x8000 + b*0x0100 + 0x0100, WriteBytes},
		},
		TotalBlocks: bankBlocks,
	}
}

func settingsMap() *TransferMap {
	return &TransferMap{
		Name: "settings",
		Bank: -1,
		Segments: []Segment{
			{0xA000, 0xA160, WriteBytes},
		},
		TotalBlocks: settingsBlocks,
	}
}

// Catalog is the list of maps the user can pick from.
type Catalog struct {
	maps  []*TransferMap
	index int
}

/*------------------------------------------------------------------
 *
 * Name:	NewCatalog
 *
 * Purpose:	Build the maps for a radio with the given number of
 *		memory channels.
 *
 * Description:	Only 2, 4, 6 or 8 banks exist (256, 512, 768, 1024
 *		channels).  Anything else is rounded down to one of
 *		those, with 2 as the minimum.
 *
 *------------------------------------------------------------------*/

func NewCatalog(channels int) *Catalog {
	var banks = channels / ChannelsPerBank
	banks -= banks % 2
	banks = max(2, min(banks, 8))

	var c = new(Catalog)
	for b := 0; b < banks; b++ {
		c.maps = append(c.maps, bankMap(b))
	}
	c.maps = append(c.maps, settingsMap())

	return c
}

// Current is the selected map.
func (c *Catalog) Current() *TransferMap {
	if c.index >= len(c.maps) || c.index < 0 {
		c.index = 0
	}
	return c.maps[c.index]
}

// Navigate moves the selection by dir (+1 or -1), wrapping both ways.
func (c *Catalog) Navigate(dir int) {
	var n = len(c.maps)
	switch {
	case dir > 0:
		c.index = (c.index + 1) % n
	case dir < 0:
		c.index = (c.index + n - 1) % n
	}
}

func (c *Catalog) Index() int { return c.index }

func (c *Catalog) Len() int { return len(c.maps) }

// Maps returns the maps in order.  They must not be modified.
func (c *Catalog) Maps() []*TransferMap { return c.maps }

// Select picks a map by index or by name.
func (c *Catalog) Select(name string) error {
	for i, m := range c.maps {
		if m.Name == name || fmt.Sprint(i) == name {
			c.index = i
			return nil
		}
	}
	return fmt.Errorf("no transfer map %q", name)
}
