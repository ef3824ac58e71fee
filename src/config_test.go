package aircopy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	var cfg, err = ParseConfig(strings.NewReader(""))
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 10*time.Millisecond, cfg.Tick())
	assert.Equal(t, uint32(410_025_000), cfg.Frequency)
}

func TestParseConfig(t *testing.T) {
	var cfg, err = ParseConfig(strings.NewReader(`
channels: 512
frequency: 145506000
tick_ms: 5
image: flash.bin
link: serial:/dev/ttyUSB0:9600
pa: -rts:/dev/ttyUSB0
rig:
  model: 1035
  port: /dev/ttyUSB1
capture:
  file: aircopy.jsonl
announce: true
log_level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Channels)
	assert.Equal(t, uint32(145_500_000), cfg.Frequency, "rounded to the channel step")
	assert.Equal(t, 5*time.Millisecond, cfg.Tick())
	assert.Equal(t, DefaultSendCountdown, cfg.SendCountdown)
	assert.Equal(t, "flash.bin", cfg.Image)
	assert.Equal(t, "serial:/dev/ttyUSB0:9600", cfg.Link)
	assert.Equal(t, "-rts:/dev/ttyUSB0", cfg.PA)
	assert.Equal(t, RigConfig{Model: 1035, Port: "/dev/ttyUSB1", Baud: 9600}, cfg.Rig)
	assert.Equal(t, "aircopy.jsonl", cfg.Capture.File)
	assert.Equal(t, DefaultTimestampFormat, cfg.Capture.TimestampFormat)
	assert.True(t, cfg.Announce)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParseConfigErrors(t *testing.T) {
	for _, doc := range []string{
		"frequency: 5000000",
		"channels: 100",
		"tick_ms: 0",
		"send_countdown: -1",
		"no_such_field: 1",
		"channels: [",
	} {
		var _, err = ParseConfig(strings.NewReader(doc))
		assert.Error(t, err, doc)
	}

	var _, err = ParseConfig(strings.NewReader("frequency: 1300000000"))
	assert.ErrorIs(t, err, ErrFrequency)
}

func TestCheckFrequency(t *testing.T) {
	var f, err = CheckFrequency(446_006_250)
	require.NoError(t, err)
	assert.Equal(t, uint32(446_012_500), f)

	f, err = CheckFrequency(18_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint32(18_000_000), f)

	_, err = CheckFrequency(17_999_999)
	assert.ErrorIs(t, err, ErrFrequency)
}

func TestLoadConfigFile(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "aircopy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("channels: 768\n"), 0o644))

	var cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 768, cfg.Channels)
	assert.Equal(t, path, cfg.Path)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigSearch(t *testing.T) {
	var dir = t.TempDir()
	var oldWd, wdErr = os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldWd) })
	t.Setenv("HOME", dir)

	require.NoError(t, os.WriteFile("aircopy.yaml", []byte("link: pty\n"), 0o644))

	var cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "pty", cfg.Link)
	assert.Equal(t, "aircopy.yaml", cfg.Path)
}
