package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	Radios sharing a simulated channel in memory.
 *
 * Description:	Every packet transmitted by one radio on the Air is
 *		heard by every other radio that is armed for receive.
 *		Delivery is synchronous: by the time SendFSKData
 *		returns, the words are in the receivers' buffers.
 *
 *		Corrupt, when set, may mangle each delivered copy and
 *		return status bits for the receiver, so tests can
 *		simulate a noisy channel.
 *
 *------------------------------------------------------------------*/

import (
	"errors"
	"sync"
)

var ErrPowerAmpOff = errors.New("transmit with power amp off")

// Air is the shared channel.
type Air struct {
	mu     sync.Mutex
	radios []*LoopbackRadio
	sent   int

	// Corrupt is called with the packet number (from 0) and a copy of
	// each packet for each receiver.
	Corrupt func(n int, p *Packet) uint16
}

func NewAir() *Air {
	return new(Air)
}

// NewRadio puts another radio on the air, receiving into rx.
func (a *Air) NewRadio(rx *RxBuffer) *LoopbackRadio {
	a.mu.Lock()
	defer a.mu.Unlock()

	var r = &LoopbackRadio{air: a, rx: rx}
	a.radios = append(a.radios, r)

	return r
}

// Sent counts packets put on the air.
func (a *Air) Sent() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.sent
}

func (a *Air) transmit(from *LoopbackRadio, p *Packet) {
	a.mu.Lock()
	var n = a.sent
	a.sent++
	var radios = append([]*LoopbackRadio(nil), a.radios...)
	var corrupt = a.Corrupt
	a.mu.Unlock()

	for _, r := range radios {
		if r == from {
			continue
		}

		var c = *p
		var status uint16
		if corrupt != nil {
			status = corrupt(n, &c)
		}

		r.hear(&c, status)
	}
}

// LoopbackRadio is one radio on an Air.
type LoopbackRadio struct {
	air *Air
	rx  *RxBuffer

	mu      sync.Mutex
	armed   bool
	paOn    bool
	status  uint16
	arms    int
	resets  int
	txErr   error
}

func (r *LoopbackRadio) hear(p *Packet, status uint16) {
	r.mu.Lock()
	if !r.armed {
		r.mu.Unlock()
		return
	}
	if r.rx.Full() {
		status |= StatusRxError
	}
	r.status |= status
	r.mu.Unlock()

	r.rx.PushPacket(p)
}

func (r *LoopbackRadio) SetTxParameters() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.paOn = true
	return nil
}

func (r *LoopbackRadio) SendFSKData(p *Packet) error {
	r.mu.Lock()
	var err = r.txErr
	var on = r.paOn
	r.mu.Unlock()

	if err != nil {
		return err
	}
	if !on {
		return ErrPowerAmpOff
	}

	r.air.transmit(r, p)
	return nil
}

func (r *LoopbackRadio) DisablePowerAmp() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.paOn = false
	return nil
}

func (r *LoopbackRadio) ReadStatus() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s = r.status
	r.status = 0
	return s
}

func (r *LoopbackRadio) PrepareFSKReceive() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.armed = true
	r.arms++
}

func (r *LoopbackRadio) ResetFSK() {
	r.mu.Lock()
	r.status = 0
	r.resets++
	r.mu.Unlock()

	r.rx.Reset()
}

// PowerAmpOn reports the PA state.
func (r *LoopbackRadio) PowerAmpOn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.paOn
}

// Arms counts calls to PrepareFSKReceive.
func (r *LoopbackRadio) Arms() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.arms
}

// Resets counts calls to ResetFSK.
func (r *LoopbackRadio) Resets() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.resets
}

// SetTxError makes every following SendFSKData fail with err.
func (r *LoopbackRadio) SetTxError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.txErr = err
}
