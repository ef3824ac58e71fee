package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	Read the aircopy.yaml configuration file.
 *
 * Description:	Everything has a default, so the file is optional.
 *		Command line options override what is in the file.
 *
 *		Example:
 *
 *			channels: 1024
 *			frequency: 410025000
 *			image: /var/lib/aircopy/flash.bin
 *			link: serial:/dev/ttyUSB0:9600
 *			pa: rts:/dev/ttyUSB0
 *			rig:
 *			  model: 1035
 *			  port: /dev/ttyUSB1
 *			  baud: 9600
 *			capture:
 *			  file: aircopy.jsonl
 *			  timestamp_format: "%Y-%m-%d %H:%M:%S"
 *
 *------------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultFrequency = 410_025_000 // Hz
	DefaultChannels  = 1024
	DefaultTick      = 10 * time.Millisecond
	FrequencyStep    = 12_500 // Hz
)

var ErrFrequency = errors.New("frequency not in any band")

type RigConfig struct {
	Model int    `yaml:"model"` // Hamlib model number, 0 for none.
	Port  string `yaml:"port"`
	Baud  int    `yaml:"baud"`
}

type CaptureConfig struct {
	File            string `yaml:"file"`
	TimestampFormat string `yaml:"timestamp_format"`
}

type Config struct {
	Channels      int           `yaml:"channels"`
	Frequency     uint32        `yaml:"frequency"`
	TickMS        int           `yaml:"tick_ms"`
	SendCountdown int           `yaml:"send_countdown"`
	Image         string        `yaml:"image"`
	Link          string        `yaml:"link"`
	PA            string        `yaml:"pa"`
	Rig           RigConfig     `yaml:"rig"`
	Capture       CaptureConfig `yaml:"capture"`
	Announce      bool          `yaml:"announce"`
	LogLevel      string        `yaml:"log_level"`

	// Where it was read from, empty if nothing was found.
	Path string `yaml:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		Channels:      DefaultChannels,
		Frequency:     DefaultFrequency,
		TickMS:        int(DefaultTick / time.Millisecond),
		SendCountdown: DefaultSendCountdown,
		Link:          "loopback",
		PA:            "none",
		Rig:           RigConfig{Baud: 9600},
		Capture:       CaptureConfig{TimestampFormat: DefaultTimestampFormat},
		LogLevel:      "info",
	}
}

// Tick is the main loop period.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.TickMS) * time.Millisecond
}

func configSearchLocations() []string {
	var locations = []string{
		"aircopy.yaml", // Current working directory
	}
	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(home, ".config", "aircopy", "aircopy.yaml"))
	}
	locations = append(locations,
		"/usr/local/etc/aircopy/aircopy.yaml",
		"/etc/aircopy/aircopy.yaml",
	)
	return locations
}

/*------------------------------------------------------------------
 *
 * Name:	LoadConfig
 *
 * Purpose:	Read the configuration.
 *
 * Inputs:	path	- File given with -c.  Must exist.
 *			  Empty to use the first of the usual locations
 *			  that exists, or just the defaults if none do.
 *
 *------------------------------------------------------------------*/

func LoadConfig(path string) (*Config, error) {
	var fp *os.File

	if path != "" {
		var err error
		fp, err = os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	} else {
		for _, location := range configSearchLocations() {
			var err error
			fp, err = os.Open(location)
			if err == nil {
				break
			}
		}
	}

	if fp == nil {
		return DefaultConfig(), nil
	}
	defer fp.Close()

	var cfg, err = ParseConfig(fp)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", fp.Name(), err)
	}
	cfg.Path = fp.Name()

	return cfg, nil
}

// ParseConfig reads YAML on top of the defaults and checks the result.
func ParseConfig(r io.Reader) (*Config, error) {
	var cfg = DefaultConfig()

	var dec = yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks ranges and rounds the frequency to the channel step.
func (c *Config) Validate() error {
	if c.Channels < 2*ChannelsPerBank {
		return fmt.Errorf("channels %d: need at least %d", c.Channels, 2*ChannelsPerBank)
	}
	if c.TickMS <= 0 {
		return fmt.Errorf("tick_ms %d: must be positive", c.TickMS)
	}
	if c.SendCountdown <= 0 {
		return fmt.Errorf("send_countdown %d: must be positive", c.SendCountdown)
	}

	var f, err = CheckFrequency(c.Frequency)
	if err != nil {
		return err
	}
	c.Frequency = f

	return nil
}

// A frequency band of the radio, lower inclusive, upper exclusive, in Hz.
type Band struct {
	Lower uint32
	Upper uint32
}

var FrequencyBands = []Band{
	{18_000_000, 108_000_000},
	{108_000_000, 137_000_000},
	{137_000_000, 174_000_000},
	{174_000_000, 350_000_000},
	{350_000_000, 400_000_000},
	{400_000_000, 470_000_000},
	{470_000_000, 1_300_000_000},
}

// CheckFrequency finds the band for hz and rounds to the nearest step.
func CheckFrequency(hz uint32) (uint32, error) {
	for _, b := range FrequencyBands {
		if hz < b.Lower || hz >= b.Upper {
			continue
		}
		return RoundToStep(hz, FrequencyStep), nil
	}
	return 0, fmt.Errorf("%d Hz: %w", hz, ErrFrequency)
}

func RoundToStep(hz uint32, step uint32) uint32 {
	return (hz + step/2) / step * step
}
