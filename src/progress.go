package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	Transfer progress as the display wants it.
 *
 * Description:	The radio shows "RCV:45.58% E:3" or "SND:45.58%" and a
 *		120 column gauge.  Each gauge column stands for a block;
 *		blocks that failed are left as gaps so a bad patch of
 *		reception is visible at a glance.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"strings"
)

// GaugeWidth is the width of the progress bar on the radio display.
const GaugeWidth = 120

const errorMapBytes = (maxMapBlocks + 7) / 8

// Progress is a copy of the session counters.
type Progress struct {
	State    State
	Mode     Mode
	Map      string
	Blocks   uint16
	Errors   uint16
	Total    uint16
	ErrorMap [errorMapBytes]byte
}

// Done is blocks attempted, never more than Total.
func (p Progress) Done() uint16 {
	return min(p.Blocks+p.Errors, p.Total)
}

// Percent is in hundredths of a percent, 0 to 10000.
func (p Progress) Percent() uint16 {
	if p.Total == 0 {
		return 0
	}
	return uint16(uint32(p.Done()) * 10000 / uint32(p.Total))
}

// Failed reports whether attempt number block (from 0) was an error.
func (p Progress) Failed(block int) bool {
	if block < 0 || block >= maxMapBlocks {
		return false
	}
	return p.ErrorMap[block/8]&(1<<(block%8)) != 0
}

func (p Progress) String() string {
	var pc = p.Percent()
	if p.Mode == ModeSend {
		return fmt.Sprintf("SND:%02d.%02d%%", pc/100, pc%100)
	}
	return fmt.Sprintf("RCV:%02d.%02d%% E:%d", pc/100, pc%100, p.Errors)
}

// Gauge draws the progress bar: '#' for a good block, ' ' for a failed
// one, '.' for not yet attempted.
func (p Progress) Gauge(width int) string {
	if width <= 0 {
		width = GaugeWidth
	}

	var done = int(p.Done())
	var sb strings.Builder
	sb.Grow(width)

	for col := 0; col < width; col++ {
		var b = 0
		if p.Total > 0 {
			b = col * int(p.Total) / width
		}

		switch {
		case b >= done:
			sb.WriteByte('.')
		case p.Failed(b):
			sb.WriteByte(' ')
		default:
			sb.WriteByte('#')
		}
	}

	return sb.String()
}
