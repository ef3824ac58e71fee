package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	Run one AirCopy transfer, sending or receiving.
 *
 * Description:	States are
 *
 *			Ready -> Transfer -> Complete -> Ready
 *
 *		Start (send or receive) goes from Ready to Transfer.
 *		Abort goes straight back to Ready.  A transfer is
 *		Complete once blocks + errors reaches the map's
 *		total_blocks; every attempt counts, good or bad, so a
 *		receive can never hang waiting for a block that will
 *		not arrive.  Complete drops back to Ready the first time
 *		the display observes it.
 *
 *		Send side:  SendTick is called every tick.  A countdown
 *		spaces out the packets to what the modem can actually
 *		put on the air.
 *
 *		Receive side:  StorePacket is called when the receive
 *		buffer holds a whole packet.
 *
 *		Everything that touches the session takes its lock, so
 *		a start or abort is one atomic reset as far as a tick
 *		or a received packet is concerned.
 *
 *------------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

type State int

const (
	StateReady State = iota
	StateTransfer
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateTransfer:
		return "transfer"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Mode int

const (
	ModeReceive Mode = iota
	ModeSend
)

func (m Mode) String() string {
	if m == ModeSend {
		return "send"
	}
	return "receive"
}

// SendResult says what one SendTick did.
type SendResult int

const (
	SendIdle     SendResult = iota // Nothing to do this tick.
	SendSent                       // One block went out.
	SendFinished                   // Every segment has been sent.
)

func (r SendResult) String() string {
	switch r {
	case SendIdle:
		return "idle"
	case SendSent:
		return "sent"
	case SendFinished:
		return "finished"
	default:
		return fmt.Sprintf("SendResult(%d)", int(r))
	}
}

// DefaultSendCountdown is the number of ticks between packets.
const DefaultSendCountdown = 30

var (
	ErrAddressRange  = errors.New("offset outside transfer map")
	ErrSegmentLookup = errors.New("no segment for offset")
	ErrRxStatus      = errors.New("receiver reported a frame error")
	ErrBusy          = errors.New("transfer in progress")
)

// EventKind tells a Notifier what happened.
type EventKind int

const (
	EventStart EventKind = iota
	EventComplete
)

func (k EventKind) String() string {
	if k == EventComplete {
		return "complete"
	}
	return "start"
}

type Event struct {
	Kind     EventKind
	Progress Progress
}

// Notifier is told when a transfer starts and when it completes.
type Notifier interface {
	Notify(ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ev Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

type SessionConfig struct {
	Catalog  *Catalog
	EEPROM   *EEPROM
	Radio    Radio
	Rx       *RxBuffer
	Logger   *log.Logger
	Notifier Notifier // Optional.

	// SendCountdown defaults to DefaultSendCountdown.
	SendCountdown int
}

// Session is the one AirCopy transfer.  There is only ever one.
type Session struct {
	mu sync.Mutex

	catalog       *Catalog
	eeprom        *EEPROM
	radio         Radio
	rx            *RxBuffer
	logger        *log.Logger
	notifier      Notifier
	sendCountdown int

	state    State
	mode     Mode
	blocks   uint16
	errors   uint16
	errorMap [errorMapBytes]byte

	// Send cursor.
	segIndex  int
	offset    uint32
	countdown int

	displayRequest bool
}

func NewSession(cfg SessionConfig) *Session {
	var s = &Session{
		catalog:       cfg.Catalog,
		eeprom:        cfg.EEPROM,
		radio:         cfg.Radio,
		rx:            cfg.Rx,
		logger:        cfg.Logger,
		notifier:      cfg.Notifier,
		sendCountdown: cfg.SendCountdown,
	}

	if s.sendCountdown <= 0 {
		s.sendCountdown = DefaultSendCountdown
	}
	if s.rx == nil {
		s.rx = NewRxBuffer()
	}
	if s.logger == nil {
		s.logger = log.Default()
	}

	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mode
}

// CurrentMap is the selected transfer map.
func (s *Session) CurrentMap() *TransferMap {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.catalog.Current()
}

// Rx is the buffer the receiver fills.
func (s *Session) Rx() *RxBuffer {
	return s.rx
}

// Navigate selects another map.  Only allowed while Ready.
func (s *Session) Navigate(dir int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return ErrBusy
	}

	s.catalog.Navigate(dir)
	s.displayRequest = true

	return nil
}

// Select picks a map by name or index.  Only allowed while Ready.
func (s *Session) Select(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return ErrBusy
	}

	return s.catalog.Select(name)
}

// StartSend starts sending the current map from the beginning.
func (s *Session) StartSend() {
	s.mu.Lock()
	s.resetLocked()
	s.mode = ModeSend
	s.state = StateTransfer

	var m = s.catalog.Current()
	s.offset = uint32(m.Segments[0].Start)

	var ev = s.eventLocked(EventStart)
	s.mu.Unlock()

	s.logger.Info("AirCopy send started", "map", m.Label(), "blocks", m.TotalBlocks)
	s.notify(ev)
}

// StartReceive arms the receiver and waits for packets for the current map.
func (s *Session) StartReceive() {
	s.mu.Lock()
	s.resetLocked()
	s.mode = ModeReceive
	s.radio.PrepareFSKReceive()
	s.state = StateTransfer

	var m = s.catalog.Current()
	var ev = s.eventLocked(EventStart)
	s.mu.Unlock()

	s.logger.Info("AirCopy receive started", "map", m.Label(), "blocks", m.TotalBlocks)
	s.notify(ev)
}

// Abort throws away the transfer and goes back to Ready.
func (s *Session) Abort() {
	s.mu.Lock()
	var was = s.state
	s.resetLocked()
	s.mu.Unlock()

	if was == StateTransfer {
		s.logger.Warn("AirCopy aborted")
	}
}

func (s *Session) resetLocked() {
	s.state = StateReady
	s.mode = ModeReceive
	s.blocks = 0
	s.errors = 0
	s.errorMap = [errorMapBytes]byte{}
	s.segIndex = 0
	s.offset = 0
	s.countdown = 1
	s.displayRequest = true
	s.rx.Reset()
}

/*------------------------------------------------------------------
 *
 * Name:	SendTick
 *
 * Purpose:	Send the next block, if it is time.
 *
 * Returns:	SendIdle	- not sending, or still counting down.
 *		SendSent	- a block was transmitted.
 *		SendFinished	- nothing left, now Complete.
 *
 *		An error means the block slot was used up without
 *		anything going out; it is counted as an error and the
 *		transfer carries on.
 *
 * Description:	Never waits for the hardware.  The PA is always
 *		switched off again after a packet.
 *
 *------------------------------------------------------------------*/

func (s *Session) SendTick() (SendResult, error) {
	s.mu.Lock()
	var res, ev, err = s.sendTickLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("AirCopy send failed", "err", err)
	}
	if res == SendFinished {
		s.logger.Info("AirCopy send complete", "blocks", ev.Progress.Blocks, "errors", ev.Progress.Errors)
	}
	s.notify(ev)

	return res, err
}

func (s *Session) sendTickLocked() (SendResult, *Event, error) {
	if s.state != StateTransfer || s.mode != ModeSend {
		return SendIdle, nil, nil
	}

	s.countdown--
	if s.countdown > 0 {
		return SendIdle, nil, nil
	}

	var m = s.catalog.Current()

	for s.segIndex < len(m.Segments) && s.offset >= uint32(m.Segments[s.segIndex].End) {
		s.segIndex++
		if s.segIndex < len(m.Segments) {
			s.offset = uint32(m.Segments[s.segIndex].Start)
		}
	}

	if s.segIndex >= len(m.Segments) {
		s.state = StateComplete
		s.displayRequest = true
		return SendFinished, s.eventLocked(EventComplete), nil
	}

	var off = uint16(s.offset)
	s.offset += BlockSize
	s.countdown = s.sendCountdown
	s.displayRequest = true

	var payload [BlockSize]byte
	if err := s.eeprom.ReadBuffer(off, payload[:]); err != nil {
		s.errors++
		s.markErrorLocked()
		return SendIdle, nil, fmt.Errorf("block 0x%04X: %w", off, err)
	}

	var p = EncodePacket(off, &payload)

	var txErr = s.radio.SetTxParameters()
	if txErr == nil {
		txErr = s.radio.SendFSKData(&p)
	}
	// Never leave the PA energised between blocks.
	txErr = errors.Join(txErr, s.radio.DisablePowerAmp())

	if txErr != nil {
		s.errors++
		s.markErrorLocked()
		return SendIdle, nil, fmt.Errorf("block 0x%04X: %w", off, txErr)
	}

	s.blocks++
	s.logger.Debug("AirCopy block sent", "offset", fmt.Sprintf("0x%04X", off), "block", s.blocks)

	return SendSent, nil, nil
}

/*------------------------------------------------------------------
 *
 * Name:	StorePacket
 *
 * Purpose:	Process a complete received packet.
 *
 * Returns:	nil if the block was stored, or there was no packet
 *		waiting, or we are not receiving.  Otherwise why the
 *		packet was rejected.  Rejected packets are counted as
 *		errors; none of them stop the transfer.
 *
 * Description:	The receiver is re-armed straight away, whatever the
 *		outcome.  If the chip flagged an error or the markers
 *		are wrong, the modem may have lost byte framing, so it
 *		also gets a full reset.
 *
 *------------------------------------------------------------------*/

func (s *Session) StorePacket() error {
	s.mu.Lock()
	var ev, err = s.storePacketLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Debug("AirCopy packet rejected", "err", err)
	}
	if ev != nil {
		s.logger.Info("AirCopy receive complete", "blocks", ev.Progress.Blocks, "errors", ev.Progress.Errors)
	}
	s.notify(ev)

	return err
}

func (s *Session) storePacketLocked() (*Event, error) {
	var p, ok = s.rx.Drain()
	if !ok {
		return nil, nil
	}

	s.displayRequest = true
	var status = s.radio.ReadStatus()
	s.radio.PrepareFSKReceive()

	if s.state != StateTransfer || s.mode != ModeReceive {
		return nil, nil
	}

	var offset, payload, err = DecodePacket(p)

	if status&StatusRxError != 0 || errors.Is(err, ErrBadMarkers) {
		s.radio.ResetFSK()
		s.radio.PrepareFSKReceive()
		if err == nil {
			err = fmt.Errorf("status 0x%04X: %w", status, ErrRxStatus)
		}
		return s.rejectLocked(err)
	}

	if err != nil {
		return s.rejectLocked(err)
	}

	var m = s.catalog.Current()

	if !m.Contains(offset) {
		return s.rejectLocked(fmt.Errorf("offset 0x%04X: %w", offset, ErrAddressRange))
	}

	var seg = m.FindSegment(offset)
	if seg == nil {
		return s.rejectLocked(fmt.Errorf("offset 0x%04X: %w", offset, ErrSegmentLookup))
	}

	if err := s.writeBlock(seg, offset, &payload); err != nil {
		return s.rejectLocked(err)
	}

	s.blocks++

	return s.checkCompleteLocked(), nil
}

// writeBlock stores one received block as eight granules at consecutive
// addresses.  Struct and byte segments are laid out identically; the mode
// is carried so the two can diverge later.
func (s *Session) writeBlock(seg *Segment, offset uint16, payload *[BlockSize]byte) error {
	if int(offset)+BlockSize > eepromSize {
		return fmt.Errorf("store block 0x%04X: %w", offset, ErrAddressOverflow)
	}
	for i := 0; i < BlockSize/WriteGranule; i++ {
		var a = offset + uint16(i*WriteGranule)
		if err := s.eeprom.WriteBuffer(a, payload[i*WriteGranule:]); err != nil {
			return fmt.Errorf("store %s block 0x%04X: %w", seg.Mode, offset, err)
		}
	}
	return nil
}

func (s *Session) rejectLocked(err error) (*Event, error) {
	s.errors++
	s.markErrorLocked()
	return s.checkCompleteLocked(), err
}

// markErrorLocked flags the attempt just counted as failed.
func (s *Session) markErrorLocked() {
	var i = int(s.blocks) + int(s.errors) - 1
	if i >= 0 && i < maxMapBlocks {
		s.errorMap[i/8] |= 1 << (i % 8)
	}
}

func (s *Session) checkCompleteLocked() *Event {
	var m = s.catalog.Current()
	if s.state == StateTransfer && int(s.blocks)+int(s.errors) >= int(m.TotalBlocks) {
		s.state = StateComplete
		return s.eventLocked(EventComplete)
	}
	return nil
}

// Progress is a snapshot for display.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.progressLocked()
}

// Observe is Progress for the display: a Complete session is shown once,
// then returns to Ready.  Counters are kept until the next start.
func (s *Session) Observe() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p = s.progressLocked()
	if s.state == StateComplete {
		s.state = StateReady
	}
	return p
}

// DisplayRequested reports, and clears, a pending display refresh.
func (s *Session) DisplayRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r = s.displayRequest
	s.displayRequest = false
	return r
}

func (s *Session) progressLocked() Progress {
	var m = s.catalog.Current()
	return Progress{
		State:    s.state,
		Mode:     s.mode,
		Map:      m.Label(),
		Blocks:   s.blocks,
		Errors:   s.errors,
		Total:    m.TotalBlocks,
		ErrorMap: s.errorMap,
	}
}

func (s *Session) eventLocked(kind EventKind) *Event {
	return &Event{Kind: kind, Progress: s.progressLocked()}
}

func (s *Session) notify(ev *Event) {
	if ev == nil || s.notifier == nil {
		return
	}
	s.notifier.Notify(*ev)
}
