package aircopy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// sessionPair is a sending and a receiving radio on the same air.
type sessionPair struct {
	air *Air

	txFlash *recordingFlash
	rxFlash *recordingFlash
	txEE    *EEPROM
	rxEE    *EEPROM

	txRadio *LoopbackRadio
	rxRadio *LoopbackRadio

	tx *Session
	rx *Session

	events []Event
}

func newSessionPair(t *testing.T, mapName string, countdown int) *sessionPair {
	t.Helper()

	var sp = &sessionPair{air: NewAir(), txFlash: newRecordingFlash(), rxFlash: newRecordingFlash()}
	sp.txEE = NewEEPROM(sp.txFlash, nil)
	sp.rxEE = NewEEPROM(sp.rxFlash, nil)

	var txRx = NewRxBuffer()
	var rxRx = NewRxBuffer()
	sp.txRadio = sp.air.NewRadio(txRx)
	sp.rxRadio = sp.air.NewRadio(rxRx)

	var txCat = NewCatalog(1024)
	var rxCat = NewCatalog(1024)
	require.NoError(t, txCat.Select(mapName))
	require.NoError(t, rxCat.Select(mapName))

	sp.tx = NewSession(SessionConfig{
		Catalog:       txCat,
		EEPROM:        sp.txEE,
		Radio:         sp.txRadio,
		Rx:            txRx,
		Logger:        discardLogger(),
		SendCountdown: countdown,
	})
	sp.rx = NewSession(SessionConfig{
		Catalog:  rxCat,
		EEPROM:   sp.rxEE,
		Radio:    sp.rxRadio,
		Rx:       rxRx,
		Logger:   discardLogger(),
		Notifier: NotifierFunc(func(ev Event) { sp.events = append(sp.events, ev) }),
	})

	return sp
}

// fill puts a recognisable pattern in the sender's logical space.
func (sp *sessionPair) fill(t *testing.T, m *TransferMap) {
	t.Helper()

	for _, seg := range m.Segments {
		for a := int(seg.Start); a < int(seg.End); a += WriteGranule {
			var g [WriteGranule]byte
			for i := range g {
				g[i] = byte(a+i) ^ byte((a+i)>>8)
			}
			require.NoError(t, sp.txEE.WriteBuffer(uint16(a), g[:]))
		}
	}
	require.NoError(t, sp.txFlash.Sync())
	sp.txFlash.writes = nil
}

// run ticks the sender and stores on the receiver until the sender finishes.
func (sp *sessionPair) run(t *testing.T) (sent int, storeErrs []error) {
	t.Helper()

	for i := 0; i < 10000; i++ {
		var res, err = sp.tx.SendTick()
		require.NoError(t, err)

		switch res {
		case SendSent:
			sent++
			if e := sp.rx.StorePacket(); e != nil {
				storeErrs = append(storeErrs, e)
			}
		case SendFinished:
			return sent, storeErrs
		}
	}

	t.Fatal("sender never finished")
	return
}

func TestSendSettingsPackets(t *testing.T) {
	var sp = newSessionPair(t, "settings", 1)

	sp.tx.StartSend()
	assert.Equal(t, StateTransfer, sp.tx.State())
	assert.Equal(t, ModeSend, sp.tx.Mode())

	var results []SendResult
	for i := 0; i < 7; i++ {
		var res, err = sp.tx.SendTick()
		require.NoError(t, err)
		results = append(results, res)
	}

	assert.Equal(t, []SendResult{SendSent, SendSent, SendSent, SendSent, SendSent, SendSent, SendFinished}, results)
	assert.Equal(t, 6, sp.air.Sent())
	assert.Equal(t, StateComplete, sp.tx.State())
	assert.False(t, sp.txRadio.PowerAmpOn())

	var res, err = sp.tx.SendTick()
	require.NoError(t, err)
	assert.Equal(t, SendIdle, res)
}

func TestSendCountdown(t *testing.T) {
	var sp = newSessionPair(t, "bank0", 0)

	sp.tx.StartSend()

	// First block goes straight away.
	var res, _ = sp.tx.SendTick()
	assert.Equal(t, SendSent, res)

	for i := 0; i < DefaultSendCountdown-1; i++ {
		res, _ = sp.tx.SendTick()
		assert.Equal(t, SendIdle, res, "tick %d", i)
	}

	res, _ = sp.tx.SendTick()
	assert.Equal(t, SendSent, res)
	assert.Equal(t, 2, sp.air.Sent())
}

func TestSendBankOffsets(t *testing.T) {
	var sp = newSessionPair(t, "bank1", 1)

	var offsets []uint16
	var rxb = NewRxBuffer()
	var listener = sp.air.NewRadio(rxb)
	listener.PrepareFSKReceive()

	sp.tx.StartSend()
	for {
		var res, err = sp.tx.SendTick()
		require.NoError(t, err)
		if res == SendFinished {
			break
		}
		var p, ok = rxb.Drain()
		require.True(t, ok)
		var off, _, decErr = DecodePacket(p)
		require.NoError(t, decErr)
		offsets = append(offsets, off)
	}

	require.Len(t, offsets, 68)
	assert.Equal(t, uint16(0x0800), offsets[0])
	assert.Equal(t, uint16(0x0FC0), offsets[31])
	assert.Equal(t, uint16(0x4800), offsets[32])
	assert.Equal(t, uint16(0x8100), offsets[64])
	assert.Equal(t, uint16(0x81C0), offsets[67])
}

func TestFullSettingsTransfer(t *testing.T) {
	var sp = newSessionPair(t, "settings", 1)
	var m = sp.tx.CurrentMap()
	sp.fill(t, m)

	sp.rx.StartReceive()
	sp.tx.StartSend()

	var sent, errs = sp.run(t)
	assert.Equal(t, 6, sent)
	assert.Empty(t, errs)

	var p = sp.rx.Progress()
	assert.Equal(t, StateComplete, p.State)
	assert.Equal(t, uint16(6), p.Blocks)
	assert.Equal(t, uint16(0), p.Errors)
	assert.Equal(t, "RCV:100.00% E:0", p.String())

	var want = make([]byte, 0x160)
	var got = make([]byte, 0x160)
	require.NoError(t, sp.txEE.ReadBuffer(0xA000, want))
	require.NoError(t, sp.rxEE.ReadBuffer(0xA000, got))
	assert.Equal(t, want, got)

	// The half block past the end of settings was dropped, not written.
	for _, w := range sp.rxFlash.writes {
		assert.Less(t, w.addr, uint32(0xA160))
	}

	// Start and complete were announced.
	require.Len(t, sp.events, 2)
	assert.Equal(t, EventStart, sp.events[0].Kind)
	assert.Equal(t, EventComplete, sp.events[1].Kind)
	assert.Equal(t, "Settings", sp.events[1].Progress.Map)

	// The display sees Complete once.
	assert.Equal(t, StateComplete, sp.rx.Observe().State)
	assert.Equal(t, StateReady, sp.rx.State())
	assert.Equal(t, uint16(6), sp.rx.Progress().Blocks)
}

func TestSettingsTransferWithErrors(t *testing.T) {
	var sp = newSessionPair(t, "settings", 1)
	sp.fill(t, sp.tx.CurrentMap())

	// Four good blocks, then the last two are damaged.
	sp.air.Corrupt = func(n int, p *Packet) uint16 {
		if n == 4 || n == 5 {
			p[10] ^= 0x0100
		}
		return 0
	}

	sp.rx.StartReceive()
	sp.tx.StartSend()

	var errs []error
	for attempt := 1; attempt <= 6; attempt++ {
		var res, err = sp.tx.SendTick()
		require.NoError(t, err)
		require.Equal(t, SendSent, res)

		if e := sp.rx.StorePacket(); e != nil {
			errs = append(errs, e)
		}

		if attempt < 6 {
			assert.Equal(t, StateTransfer, sp.rx.State(), "attempt %d", attempt)
		}
	}

	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	}

	var p = sp.rx.Progress()
	assert.Equal(t, StateComplete, p.State)
	assert.Equal(t, uint16(4), p.Blocks)
	assert.Equal(t, uint16(2), p.Errors)
	assert.False(t, p.Failed(3))
	assert.True(t, p.Failed(4))
	assert.True(t, p.Failed(5))
	assert.Equal(t, "####  ", p.Gauge(6))

	var res, err = sp.tx.SendTick()
	require.NoError(t, err)
	assert.Equal(t, SendFinished, res)

	// Checksum errors don't need a hard reset.
	assert.Equal(t, 0, sp.rxRadio.Resets())
}

func TestCorruptedMarkerResets(t *testing.T) {
	var sp = newSessionPair(t, "settings", 1)

	sp.air.Corrupt = func(n int, p *Packet) uint16 {
		if n == 0 {
			p[0] = 0xABCC
		}
		return 0
	}

	sp.rx.StartReceive()
	var arms = sp.rxRadio.Arms()
	sp.tx.StartSend()

	var _, err = sp.tx.SendTick()
	require.NoError(t, err)

	err = sp.rx.StorePacket()
	assert.ErrorIs(t, err, ErrBadMarkers)
	assert.Equal(t, 1, sp.rxRadio.Resets())
	assert.Equal(t, arms+2, sp.rxRadio.Arms())

	var p = sp.rx.Progress()
	assert.Equal(t, uint16(0), p.Blocks)
	assert.Equal(t, uint16(1), p.Errors)
	assert.True(t, p.Failed(0))
	assert.Equal(t, StateTransfer, p.State)
	assert.Empty(t, sp.rxFlash.writes)
}

func TestStatusErrorResets(t *testing.T) {
	var sp = newSessionPair(t, "settings", 1)

	sp.air.Corrupt = func(n int, p *Packet) uint16 {
		return StatusRxError
	}

	sp.rx.StartReceive()
	sp.tx.StartSend()
	_, _ = sp.tx.SendTick()

	var err = sp.rx.StorePacket()
	assert.ErrorIs(t, err, ErrRxStatus)
	assert.Equal(t, 1, sp.rxRadio.Resets())
	assert.Equal(t, uint16(1), sp.rx.Progress().Errors)
}

func TestOutOfRangeOffset(t *testing.T) {
	var sp = newSessionPair(t, "settings", 1)
	sp.rx.StartReceive()

	var p = EncodePacket(0x0000, payloadOf(0x33))
	sp.rx.Rx().PushPacket(&p)

	var err = sp.rx.StorePacket()
	assert.ErrorIs(t, err, ErrAddressRange)

	var pr = sp.rx.Progress()
	assert.Equal(t, uint16(0), pr.Blocks)
	assert.Equal(t, uint16(1), pr.Errors)
	assert.Equal(t, StateTransfer, pr.State)
	assert.Empty(t, sp.rxFlash.writes)
}

func TestStoreWritesGranules(t *testing.T) {
	var sp = newSessionPair(t, "bank0", 1)
	sp.rx.StartReceive()

	var p = EncodePacket(0x0040, payloadOf(0x33))
	sp.rx.Rx().PushPacket(&p)
	require.NoError(t, sp.rx.StorePacket())

	require.Len(t, sp.rxFlash.writes, 8)
	for i, w := range sp.rxFlash.writes {
		assert.Equal(t, uint32(0x0040+8*i), w.addr)
		assert.Len(t, w.data, 8)
	}
}

func TestStoreFlashFailure(t *testing.T) {
	var sp = newSessionPair(t, "settings", 1)
	sp.rx.StartReceive()
	sp.rxFlash.fail = errors.New("bus fault")

	var p = EncodePacket(0xA000, payloadOf(0x33))
	sp.rx.Rx().PushPacket(&p)

	var err = sp.rx.StorePacket()
	assert.ErrorIs(t, err, sp.rxFlash.fail)
	assert.Equal(t, uint16(1), sp.rx.Progress().Errors)
}

func TestPacketDroppedWhenNotReceiving(t *testing.T) {
	var sp = newSessionPair(t, "settings", 1)

	var p = EncodePacket(0xA000, payloadOf(0x33))
	sp.rx.Rx().PushPacket(&p)

	assert.NoError(t, sp.rx.StorePacket())
	assert.Equal(t, 1, sp.rxRadio.Arms())
	assert.Equal(t, Progress{State: StateReady, Map: "Settings", Total: 6}, sp.rx.Progress())
	assert.Empty(t, sp.rxFlash.writes)

	// Nothing waiting: nothing happens.
	assert.NoError(t, sp.rx.StorePacket())
	assert.Equal(t, 1, sp.rxRadio.Arms())
}

func TestSendFailureCounted(t *testing.T) {
	var sp = newSessionPair(t, "settings", 1)
	var txErr = errors.New("modem gone")
	sp.txRadio.SetTxError(txErr)

	sp.tx.StartSend()
	var res, err = sp.tx.SendTick()

	assert.Equal(t, SendIdle, res)
	assert.ErrorIs(t, err, txErr)
	assert.False(t, sp.txRadio.PowerAmpOn())

	var p = sp.tx.Progress()
	assert.Equal(t, uint16(1), p.Errors)
	assert.True(t, p.Failed(0))

	// The transfer carries on with the next block.
	sp.txRadio.SetTxError(nil)
	res, err = sp.tx.SendTick()
	require.NoError(t, err)
	assert.Equal(t, SendSent, res)
}

func TestSendReadFailureCounted(t *testing.T) {
	var sp = newSessionPair(t, "settings", 1)
	sp.txFlash.fail = errors.New("bus fault")

	sp.tx.StartSend()
	var res, err = sp.tx.SendTick()

	assert.Equal(t, SendIdle, res)
	assert.ErrorIs(t, err, sp.txFlash.fail)
	assert.Equal(t, 0, sp.air.Sent())
	assert.Equal(t, uint16(1), sp.tx.Progress().Errors)
}

func TestAbortAndBusy(t *testing.T) {
	var sp = newSessionPair(t, "bank0", 1)

	sp.rx.StartReceive()
	assert.ErrorIs(t, sp.rx.Navigate(1), ErrBusy)
	assert.ErrorIs(t, sp.rx.Select("settings"), ErrBusy)

	var p = EncodePacket(0x0000, payloadOf(1))
	sp.rx.Rx().PushPacket(&p)
	require.NoError(t, sp.rx.StorePacket())
	assert.Equal(t, uint16(1), sp.rx.Progress().Blocks)

	sp.rx.Abort()
	assert.Equal(t, StateReady, sp.rx.State())
	assert.Equal(t, uint16(0), sp.rx.Progress().Blocks)

	require.NoError(t, sp.rx.Navigate(-1))
	assert.Equal(t, "settings", sp.rx.CurrentMap().Name)
	assert.True(t, sp.rx.DisplayRequested())
	assert.False(t, sp.rx.DisplayRequested())
}

// Whatever mix of good and bad packets arrives, the attempt count goes up
// by one per packet and the transfer completes exactly at total_blocks.
func TestCompletionMonotonic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var sp = newSessionPair(t, "settings", 1)
		sp.rx.StartReceive()

		var kinds = rapid.SliceOfN(rapid.IntRange(0, 3), 1, 12).Draw(rt, "kinds")

		var last uint16
		for i, kind := range kinds {
			var p = EncodePacket(0xA000+uint16(i%6)*BlockSize, payloadOf(byte(i)))
			switch kind {
			case 1:
				p[0] = 0
			case 2:
				p[5] ^= 1
			case 3:
				p = EncodePacket(0x0000, payloadOf(byte(i)))
			}

			var wasComplete = sp.rx.State() == StateComplete
			sp.rx.Rx().PushPacket(&p)
			_ = sp.rx.StorePacket()

			var pr = sp.rx.Progress()
			var done = pr.Blocks + pr.Errors

			if wasComplete {
				assert.Equal(rt, last, done)
				assert.Equal(rt, StateComplete, pr.State)
				continue
			}

			assert.Equal(rt, last+1, done)
			assert.Equal(rt, done >= pr.Total, pr.State == StateComplete)
			last = done
		}
	})
}

func TestProcessKey(t *testing.T) {
	var sp = newSessionPair(t, "bank0", 1)
	var s = sp.rx

	// Releases and held keys do nothing.
	s.ProcessKey(KeyMenu, false, false, false)
	s.ProcessKey(KeyMenu, true, true, false)
	assert.Equal(t, StateReady, s.State())

	s.ProcessKey(KeyDown, true, false, false)
	assert.Equal(t, "settings", s.CurrentMap().Name)
	s.ProcessKey(KeyUp, true, false, false)
	assert.Equal(t, "bank0", s.CurrentMap().Name)
	s.ProcessKey(KeyUp, true, false, true)
	assert.Equal(t, "settings", s.CurrentMap().Name)

	s.ProcessKey(KeyMenu, true, false, false)
	assert.Equal(t, StateTransfer, s.State())
	assert.Equal(t, ModeSend, s.Mode())

	// No map changes mid transfer.
	s.ProcessKey(KeyUp, true, false, false)
	assert.Equal(t, "settings", s.CurrentMap().Name)

	s.ProcessKey(KeyExit, true, false, false)
	assert.Equal(t, StateReady, s.State())

	s.ProcessKey(KeyExit, true, false, false)
	assert.Equal(t, StateTransfer, s.State())
	assert.Equal(t, ModeReceive, s.Mode())
}
