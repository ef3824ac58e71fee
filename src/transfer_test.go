package aircopy

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(t *testing.T) *Config {
	t.Helper()

	var cfg = DefaultConfig()
	cfg.TickMS = 1
	cfg.SendCountdown = 1
	return cfg
}

func TestRunTransferLoopback(t *testing.T) {
	var dir = t.TempDir()
	var image = filepath.Join(dir, "flash.bin")

	// Something worth sending.
	var flash, err = OpenFlashImage(image)
	require.NoError(t, err)
	var e = NewEEPROM(flash, nil)
	for a := uint16(0xA000); a < 0xA160; a += WriteGranule {
		require.NoError(t, e.WriteBuffer(a, []byte{byte(a), byte(a >> 8), 1, 2, 3, 4, 5, 6}))
	}
	require.NoError(t, flash.Close())

	var cfg = fastConfig(t)
	cfg.Image = image
	cfg.Capture.File = filepath.Join(dir, "capture.jsonl")

	var out bytes.Buffer
	var ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var p, runErr = RunTransfer(ctx, cfg, Job{Send: true, Map: "settings"}, discardLogger(), &out)
	require.NoError(t, runErr)

	assert.Equal(t, uint16(6), p.Blocks)
	assert.Equal(t, uint16(0), p.Errors)
	assert.Equal(t, StateComplete, p.State)
	assert.Contains(t, out.String(), "Settings SND:100.00%")

	var capture, readErr = os.ReadFile(cfg.Capture.File)
	require.NoError(t, readErr)
	assert.Len(t, readRecords(t, capture), 2)
}

func TestRunTransferLoopbackReceiveRefused(t *testing.T) {
	var _, err = RunTransfer(context.Background(), fastConfig(t), Job{Map: "settings"}, discardLogger(), new(bytes.Buffer))
	assert.Error(t, err)
}

func TestRunTransferBadMap(t *testing.T) {
	var _, err = RunTransfer(context.Background(), fastConfig(t), Job{Send: true, Map: "bank9"}, discardLogger(), new(bytes.Buffer))
	assert.Error(t, err)
}

func TestRunTransferBadLink(t *testing.T) {
	var cfg = fastConfig(t)
	cfg.Link = "carrier-pigeon"

	var _, err = RunTransfer(context.Background(), cfg, Job{Send: true}, discardLogger(), new(bytes.Buffer))
	assert.ErrorContains(t, err, "unknown kind")
}

func TestRunTransferCancelled(t *testing.T) {
	var cfg = fastConfig(t)
	cfg.SendCountdown = 1000

	var ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var p, err = RunTransfer(ctx, cfg, Job{Send: true}, discardLogger(), new(bytes.Buffer))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateReady, p.State)
}

// Two sessions, one each end of a TCP link.
func TestSessionsOverTCP(t *testing.T) {
	var ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var ln, err = ListenNet(ctx, "127.0.0.1:0", false, "", discardLogger())
	require.NoError(t, err)
	defer ln.Close()

	var rxRecv = NewRxBuffer()
	var accepted = make(chan *NetRadio, 1)
	go func() {
		var r, _ = ln.Accept(ctx, rxRecv, StreamOptions{})
		accepted <- r
	}()

	var sender, dialErr = DialNet(ctx, ln.Addr().String(), NewRxBuffer(), StreamOptions{})
	require.NoError(t, dialErr)
	defer sender.Close()

	var receiver = <-accepted
	require.NotNil(t, receiver)
	defer receiver.Close()

	var txEE = NewEEPROM(NewMemFlash(), nil)
	var bank1 = NewCatalog(256).Maps()[1]
	for _, seg := range bank1.Segments {
		for a := seg.Start; a < seg.End; a += WriteGranule {
			require.NoError(t, txEE.WriteBuffer(a, []byte{byte(a >> 8), byte(a), 0xC0, 0xFF, 0xEE, 0, 0, 1}))
		}
	}

	var rxEE = NewEEPROM(NewMemFlash(), nil)

	var tx = NewSession(SessionConfig{Catalog: NewCatalog(256), EEPROM: txEE, Radio: sender, Logger: discardLogger(), SendCountdown: 1})
	var rx = NewSession(SessionConfig{Catalog: NewCatalog(256), EEPROM: rxEE, Radio: receiver, Rx: rxRecv, Logger: discardLogger()})
	require.NoError(t, tx.Select("bank1"))
	require.NoError(t, rx.Select("bank1"))

	rx.StartReceive()
	tx.StartSend()

	for {
		var res, err = tx.SendTick()
		require.NoError(t, err)
		if res == SendFinished {
			break
		}

		select {
		case <-rxRecv.Ready():
		case <-ctx.Done():
			t.Fatal("packet lost")
		}
		require.NoError(t, rx.StorePacket())
	}

	var p = rx.Observe()
	assert.Equal(t, StateComplete, p.State)
	assert.Equal(t, uint16(68), p.Blocks)
	assert.Equal(t, uint16(0), p.Errors)

	for _, seg := range bank1.Segments {
		var want = make([]byte, seg.End-seg.Start)
		var got = make([]byte, seg.End-seg.Start)
		require.NoError(t, txEE.ReadBuffer(seg.Start, want))
		require.NoError(t, rxEE.ReadBuffer(seg.Start, got))
		assert.Equal(t, want, got, "segment 0x%04X", seg.Start)
	}
}

func TestDecodeKeys(t *testing.T) {
	assert.Equal(t, []keyInput{
		{key: KeyMenu},
		{key: KeyUp},
		{key: KeyDown},
		{key: KeyExit},
		{key: KeyDown},
		{quit: true},
	}, decodeKeys([]byte("m\x1b[A\x1b[Be jxq")))

	assert.Equal(t, []keyInput{{key: KeyExit}}, decodeKeys([]byte{0x1b}))
	assert.Nil(t, decodeKeys([]byte("zz")))
}

func TestDisplayLines(t *testing.T) {
	var out bytes.Buffer
	var d = newDisplay(&out)
	assert.False(t, d.tty)

	for b := uint16(0); b <= 6; b++ {
		d.show(Progress{State: StateTransfer, Mode: ModeReceive, Map: "Settings", Blocks: b, Total: 6})
	}
	d.finish()

	assert.Equal(t, "Settings RCV:00.00% E:0\n"+
		"Settings RCV:16.66% E:0\n"+
		"Settings RCV:33.33% E:0\n"+
		"Settings RCV:50.00% E:0\n"+
		"Settings RCV:66.66% E:0\n"+
		"Settings RCV:83.33% E:0\n"+
		"Settings RCV:100.00% E:0\n", out.String())
}
