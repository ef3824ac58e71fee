package aircopy

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// NewLogger returns the logger everything in here writes to.
// An unknown level name falls back to info.
func NewLogger(w io.Writer, level string) *log.Logger {
	var logger = log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "aircopy",
	})

	var lvl, err = log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)

	return logger
}

// discardLogger is for tests and for links created without one.
func discardLogger() *log.Logger {
	return log.New(io.Discard)
}
