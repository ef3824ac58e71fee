package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	Keep a record of each transfer.
 *
 * Description:	A Notifier that appends one JSON object per line to a
 *		file for every start and completion, so a session can be
 *		examined afterwards.  Each start gets a new id so the
 *		complete record can be matched up with its start.
 *
 *		The timestamp format is strftime style, the same as the
 *		-T option of the other tools, e.g. "%Y-%m-%dT%H:%M:%S".
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lestrrat-go/strftime"
)

const DefaultTimestampFormat = "%Y-%m-%dT%H:%M:%S"

// CaptureRecord is one line of the capture file.
type CaptureRecord struct {
	Session string `json:"session"`
	Time    string `json:"time"`
	Event   string `json:"event"`
	Mode    string `json:"mode"`
	Map     string `json:"map"`
	Blocks  uint16 `json:"blocks"`
	Errors  uint16 `json:"errors"`
	Total   uint16 `json:"total"`
	Failed  []int  `json:"failed,omitempty"`
}

type Capture struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	format *strftime.Strftime
	logger *log.Logger
	id     string

	now func() time.Time
}

// NewCapture writes records to w.  An empty format means DefaultTimestampFormat.
func NewCapture(w io.Writer, format string, logger *log.Logger) (*Capture, error) {
	if format == "" {
		format = DefaultTimestampFormat
	}

	var f, err = strftime.New(format)
	if err != nil {
		return nil, fmt.Errorf("capture timestamp format %q: %w", format, err)
	}

	if logger == nil {
		logger = discardLogger()
	}

	return &Capture{w: w, format: f, logger: logger, now: time.Now}, nil
}

// OpenCapture appends to the named file.
func OpenCapture(path string, format string, logger *log.Logger) (*Capture, error) {
	var f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("capture file: %w", err)
	}

	var c, cErr = NewCapture(f, format, logger)
	if cErr != nil {
		f.Close()
		return nil, cErr
	}
	c.closer = f

	return c, nil
}

func (c *Capture) Notify(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.Kind == EventStart || c.id == "" {
		c.id = uuid.NewString()
	}

	var rec = CaptureRecord{
		Session: c.id,
		Time:    c.format.FormatString(c.now()),
		Event:   ev.Kind.String(),
		Mode:    ev.Progress.Mode.String(),
		Map:     ev.Progress.Map,
		Blocks:  ev.Progress.Blocks,
		Errors:  ev.Progress.Errors,
		Total:   ev.Progress.Total,
	}

	for i := 0; i < int(ev.Progress.Done()); i++ {
		if ev.Progress.Failed(i) {
			rec.Failed = append(rec.Failed, i)
		}
	}

	var b, err = json.Marshal(rec)
	if err != nil {
		c.logger.Error("Capture record", "err", err)
		return
	}

	b = append(b, '\n')
	if _, err := c.w.Write(b); err != nil {
		c.logger.Error("Capture write", "err", err)
	}
}

func (c *Capture) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
