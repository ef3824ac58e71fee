package aircopy

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, data []byte) []CaptureRecord {
	t.Helper()

	var recs []CaptureRecord
	var sc = bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var r CaptureRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		recs = append(recs, r)
	}
	require.NoError(t, sc.Err())
	return recs
}

func TestCaptureRecords(t *testing.T) {
	var buf bytes.Buffer
	var c, err = NewCapture(&buf, "%Y%m%d %H%M", discardLogger())
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC) }

	var start = Progress{State: StateTransfer, Mode: ModeReceive, Map: "Settings", Total: 6}
	var done = Progress{State: StateComplete, Mode: ModeReceive, Map: "Settings", Blocks: 4, Errors: 2, Total: 6}
	done.ErrorMap[0] = 1<<1 | 1<<4

	c.Notify(Event{Kind: EventStart, Progress: start})
	c.Notify(Event{Kind: EventComplete, Progress: done})
	c.Notify(Event{Kind: EventStart, Progress: start})

	var recs = readRecords(t, buf.Bytes())
	require.Len(t, recs, 3)

	assert.Equal(t, "start", recs[0].Event)
	assert.Equal(t, "20240309 1405", recs[0].Time)
	assert.Equal(t, "receive", recs[0].Mode)
	assert.Nil(t, recs[0].Failed)

	assert.Equal(t, "complete", recs[1].Event)
	assert.Equal(t, recs[0].Session, recs[1].Session)
	assert.Equal(t, uint16(4), recs[1].Blocks)
	assert.Equal(t, uint16(2), recs[1].Errors)
	assert.Equal(t, []int{1, 4}, recs[1].Failed)

	assert.NotEqual(t, recs[0].Session, recs[2].Session, "each start is a new session")
	assert.Len(t, recs[2].Session, 36)
}

func TestCaptureFromSession(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "capture.jsonl")
	var c, err = OpenCapture(path, "", discardLogger())
	require.NoError(t, err)

	var air = NewAir()
	var s = NewSession(SessionConfig{
		Catalog:       NewCatalog(256),
		EEPROM:        NewEEPROM(NewMemFlash(), nil),
		Radio:         air.NewRadio(NewRxBuffer()),
		Logger:        discardLogger(),
		Notifier:      c,
		SendCountdown: 1,
	})
	require.NoError(t, s.Select("settings"))

	s.StartSend()
	for {
		var res, err = s.SendTick()
		require.NoError(t, err)
		if res == SendFinished {
			break
		}
	}
	require.NoError(t, c.Close())

	var data, readErr = os.ReadFile(path)
	require.NoError(t, readErr)

	var recs = readRecords(t, data)
	require.Len(t, recs, 2)
	assert.Equal(t, "send", recs[0].Mode)
	assert.Equal(t, "complete", recs[1].Event)
	assert.Equal(t, uint16(6), recs[1].Blocks)
}
