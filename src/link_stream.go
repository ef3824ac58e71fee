package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	A Radio on top of a byte stream.
 *
 * Description:	Used for the TCP air link between two simulated radios,
 *		for an external FSK modem on a serial port, and for a
 *		pseudo terminal.  A packet goes out as its 72 byte wire
 *		form.
 *
 *		The reader goroutine plays the part of the FSK FIFO
 *		interrupt.  Like the radio's sync word detector it hunts
 *		for the start marker, then pushes 36 words into the
 *		receive buffer and goes back to hunting.  A full reset
 *		drops anything half received and starts hunting again.
 *
 *		Words lost because the previous packet was not yet
 *		processed show up as an error in the status register.
 *
 *------------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
)

type streamRadio struct {
	rw     io.ReadWriteCloser
	rx     *RxBuffer
	logger *log.Logger
	pa     PowerAmp
	tuner  Tuner
	freq   uint32

	wmu sync.Mutex // Serializes writes.

	mu      sync.Mutex
	armed   bool
	status  uint16
	odd     bool // lo holds the first byte of a word.
	lo      byte
	count   int // Words of the current packet pushed so far, 0 = hunting.
	prev    byte
	hasPrev bool

	done chan struct{}
	err  error
}

// StreamOptions are the optional parts of a stream radio.
type StreamOptions struct {
	Logger    *log.Logger
	PA        PowerAmp
	Tuner     Tuner
	Frequency uint32
}

func newStreamRadio(rw io.ReadWriteCloser, rx *RxBuffer, opts StreamOptions) *streamRadio {
	var r = &streamRadio{
		rw:     rw,
		rx:     rx,
		logger: opts.Logger,
		pa:     opts.PA,
		tuner:  opts.Tuner,
		freq:   opts.Frequency,
		done:   make(chan struct{}),
	}
	if r.logger == nil {
		r.logger = discardLogger()
	}
	if r.pa == nil {
		r.pa = noPowerAmp{}
	}

	go r.readLoop()

	return r
}

func (r *streamRadio) readLoop() {
	defer close(r.done)

	var buf = make([]byte, 256)
	for {
		var n, err = r.rw.Read(buf)
		for _, b := range buf[:n] {
			r.feed(b)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Debug("link read ended", "err", err)
			}
			r.err = err
			return
		}
	}
}

// feed handles one received byte.
func (r *streamRadio) feed(b byte) {
	r.mu.Lock()

	if !r.armed {
		r.mu.Unlock()
		return
	}

	if r.count == 0 {
		// Hunting: look for the start marker, low byte first.
		var found = r.hasPrev && uint16(r.prev)|uint16(b)<<8 == packetStartMarker
		r.prev, r.hasPrev = b, true
		if !found {
			r.mu.Unlock()
			return
		}
		r.hasPrev = false
		r.count = 1
		r.mu.Unlock()
		r.push(packetStartMarker)
		return
	}

	if !r.odd {
		r.lo, r.odd = b, true
		r.mu.Unlock()
		return
	}

	var w = uint16(r.lo) | uint16(b)<<8
	r.odd = false
	r.count++
	if r.count >= PacketWords {
		r.count = 0
	}
	r.mu.Unlock()

	r.push(w)
}

func (r *streamRadio) push(w uint16) {
	if r.rx.Full() {
		r.mu.Lock()
		r.status |= StatusRxError
		r.mu.Unlock()
	}
	r.rx.Push(w)
}

func (r *streamRadio) SetTxParameters() error {
	if r.tuner != nil && r.freq != 0 {
		if err := r.tuner.SetFrequency(r.freq); err != nil {
			return err
		}
	}
	return r.pa.Set(true)
}

func (r *streamRadio) SendFSKData(p *Packet) error {
	var b, _ = p.MarshalBinary()

	r.wmu.Lock()
	defer r.wmu.Unlock()

	if _, err := r.rw.Write(b); err != nil {
		return fmt.Errorf("link write: %w", err)
	}
	return nil
}

func (r *streamRadio) DisablePowerAmp() error {
	return r.pa.Set(false)
}

// ReadStatus returns and clears the status bits.
func (r *streamRadio) ReadStatus() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s = r.status
	r.status = 0
	return s
}

func (r *streamRadio) PrepareFSKReceive() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.armed = true
}

func (r *streamRadio) ResetFSK() {
	r.mu.Lock()
	r.count = 0
	r.odd = false
	r.hasPrev = false
	r.status = 0
	r.mu.Unlock()

	r.rx.Reset()
}

// Done is closed when the stream has ended.
func (r *streamRadio) Done() <-chan struct{} {
	return r.done
}

// Err is why the stream ended, once Done is closed.
func (r *streamRadio) Err() error {
	<-r.done
	return r.err
}

func (r *streamRadio) Close() error {
	var err = errors.Join(r.pa.Close(), r.rw.Close())
	if r.tuner != nil {
		err = errors.Join(err, r.tuner.Close())
	}
	return err
}
