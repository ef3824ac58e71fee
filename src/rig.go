package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	Put an external transceiver on the AirCopy frequency.
 *
 * Description:	The handheld retunes its own synthesizer before each
 *		packet.  With an external modem and a CAT controlled
 *		rig we do the same through Hamlib.  Model numbers are
 *		the ones "rigctl --list" shows.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"sync"

	"github.com/xylo04/goHamlib"
)

// Tuner sets the transmit/receive frequency.
type Tuner interface {
	SetFrequency(hz uint32) error
	Close() error
}

// HamlibRig is a Tuner for a CAT controlled radio.
type HamlibRig struct {
	mu  sync.Mutex
	rig goHamlib.Rig

	// Skip CAT traffic when nothing changed.
	last uint32
}

func OpenHamlibRig(model int, port string, baud int) (*HamlibRig, error) {
	var h = new(HamlibRig)

	if err := h.rig.Init(goHamlib.RigModelID(model)); err != nil {
		return nil, fmt.Errorf("hamlib init model %d: %w", model, err)
	}

	var p = goHamlib.Port{
		RigPortType: goHamlib.RigPortSerial,
		Portname:    port,
		Baudrate:    baud,
		Databits:    8,
		Stopbits:    1,
		Parity:      goHamlib.ParityNone,
		Handshake:   goHamlib.HandshakeNone,
	}

	if err := h.rig.SetPort(p); err != nil {
		h.rig.Cleanup()
		return nil, fmt.Errorf("hamlib port %s: %w", port, err)
	}

	if err := h.rig.Open(); err != nil {
		h.rig.Cleanup()
		return nil, fmt.Errorf("hamlib open %s: %w", port, err)
	}

	return h, nil
}

func (h *HamlibRig) SetFrequency(hz uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if hz == h.last {
		return nil
	}

	if err := h.rig.SetFreq(goHamlib.VFOCurrent, float64(hz)); err != nil {
		return fmt.Errorf("hamlib set frequency %d: %w", hz, err)
	}
	h.last = hz

	return nil
}

func (h *HamlibRig) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var err = h.rig.Close()
	h.rig.Cleanup()

	return err
}
