package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	Put the pieces together and run one transfer.
 *
 * Description:	The main loop is the radio's main loop: a tick drives
 *		the sender, a full receive buffer drives the receiver,
 *		and the display is refreshed when the session asks.
 *
 *		Links:
 *
 *		loopback		Self test.  A second, in memory,
 *					radio receives what we send and
 *					the result is compared.
 *		serial:DEV[:BAUD]	External FSK modem.
 *		pty			Pseudo terminal, name is logged.
 *		listen:[HOST]:PORT	Wait for another aircopy over TCP.
 *		dial:HOST:PORT		Connect to one that is listening.
 *
 *------------------------------------------------------------------*/

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/term"
)

// Job is what the user asked for on the command line.
type Job struct {
	Send        bool
	Map         string // Name or index, empty for the first.
	Interactive bool   // Keys from stdin instead of Send.
	SwapUpDown  bool
}

// Closed by stream links when the other end goes away.
type linkEnder interface {
	Done() <-chan struct{}
	Err() error
}

// peer is the far end of a loopback self test.
type peer struct {
	session *Session
	radio   *LoopbackRadio
	rx      *RxBuffer
	eeprom  *EEPROM
}

func newPeer(air *Air) *peer {
	var p = &peer{rx: NewRxBuffer(), eeprom: NewEEPROM(NewMemFlash(), nil)}
	p.radio = air.NewRadio(p.rx)
	return p
}

/*------------------------------------------------------------------
 *
 * Name:	openLink
 *
 * Purpose:	Create the Radio described by cfg.Link.
 *
 * Returns:	The radio, something to close when done, and for the
 *		loopback link the receiving peer.
 *
 *------------------------------------------------------------------*/

func openLink(ctx context.Context, cfg *Config, rx *RxBuffer, logger *log.Logger) (Radio, io.Closer, *peer, error) {
	var kind, rest, _ = strings.Cut(cfg.Link, ":")

	if kind == "loopback" {
		var air = NewAir()
		var p = newPeer(air)
		return air.NewRadio(rx), closers(nil), p, nil
	}

	var opts = StreamOptions{Logger: logger, Frequency: cfg.Frequency}

	var pa, paErr = OpenPowerAmp(cfg.PA)
	if paErr != nil {
		return nil, nil, nil, paErr
	}
	opts.PA = pa

	if cfg.Rig.Model != 0 {
		var rig, rigErr = OpenHamlibRig(cfg.Rig.Model, cfg.Rig.Port, cfg.Rig.Baud)
		if rigErr != nil {
			pa.Close()
			return nil, nil, nil, rigErr
		}
		opts.Tuner = rig
	}

	var radio, closer, err = openStreamLink(ctx, kind, rest, cfg, rx, opts, logger)
	if err != nil {
		pa.Close()
		if opts.Tuner != nil {
			opts.Tuner.Close()
		}
		return nil, nil, nil, err
	}

	return radio, closer, nil, nil
}

func openStreamLink(ctx context.Context, kind string, rest string, cfg *Config, rx *RxBuffer, opts StreamOptions, logger *log.Logger) (Radio, io.Closer, error) {
	switch kind {
	case "serial":
		var dev, baudStr, hasBaud = strings.Cut(rest, ":")
		var baud = 0
		if hasBaud {
			var err error
			baud, err = strconv.Atoi(baudStr)
			if err != nil {
				return nil, nil, fmt.Errorf("link %q: bad speed: %w", cfg.Link, err)
			}
		}
		var r, err = OpenSerialRadio(dev, baud, rx, opts)
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil

	case "pty":
		var r, pts, err = OpenPtyRadio(rx, opts)
		if err != nil {
			return nil, nil, err
		}
		return r, closers{r, pts}, nil

	case "listen":
		var ln, err = ListenNet(ctx, rest, cfg.Announce, "", logger)
		if err != nil {
			return nil, nil, err
		}
		var r, acceptErr = ln.Accept(ctx, rx, opts)
		ln.Close()
		if acceptErr != nil {
			return nil, nil, acceptErr
		}
		return r, r, nil

	case "dial":
		var r, err = DialNet(ctx, rest, rx, opts)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Connected", "remote", r.RemoteAddr().String())
		return r, r, nil
	}

	return nil, nil, fmt.Errorf("link %q: unknown kind %q", cfg.Link, kind)
}

type closers []io.Closer

func (c closers) Close() error {
	var err error
	for _, x := range c {
		err = errors.Join(err, x.Close())
	}
	return err
}

/*------------------------------------------------------------------
 *
 * Name:	RunTransfer
 *
 * Purpose:	Run a whole transfer described by cfg and job.
 *
 * Inputs:	out	- Where progress is shown.  A terminal gets a
 *			  gauge redrawn in place, anything else a line
 *			  every 10%.
 *
 * Returns:	The final progress.  Block errors are not an error
 *		here; they are in the progress.  Cancelling ctx aborts.
 *
 *------------------------------------------------------------------*/

func RunTransfer(ctx context.Context, cfg *Config, job Job, logger *log.Logger, out io.Writer) (Progress, error) {
	var flash *FlashImage
	if cfg.Image == "" {
		if !job.Send {
			logger.Warn("No image file, received data will not be kept")
		}
		flash = NewMemFlash()
	} else {
		var err error
		flash, err = OpenFlashImage(cfg.Image)
		if err != nil {
			return Progress{}, err
		}
	}
	defer func() {
		if err := flash.Close(); err != nil {
			logger.Error("Closing flash image", "err", err)
		}
	}()

	var eeprom = NewEEPROM(flash, nil)
	var rx = NewRxBuffer()

	var notifier Notifier
	if cfg.Capture.File != "" {
		var c, err = OpenCapture(cfg.Capture.File, cfg.Capture.TimestampFormat, logger)
		if err != nil {
			return Progress{}, err
		}
		defer c.Close()
		notifier = c
	}

	var radio, closer, pr, err = openLink(ctx, cfg, rx, logger)
	if err != nil {
		return Progress{}, err
	}
	defer closer.Close()

	var catalog = NewCatalog(cfg.Channels)
	if job.Map != "" {
		if err := catalog.Select(job.Map); err != nil {
			return Progress{}, err
		}
	}

	var session = NewSession(SessionConfig{
		Catalog:       catalog,
		EEPROM:        eeprom,
		Radio:         radio,
		Rx:            rx,
		Logger:        logger,
		Notifier:      notifier,
		SendCountdown: cfg.SendCountdown,
	})

	if pr != nil {
		if !job.Send || job.Interactive {
			return Progress{}, errors.New("loopback link can only send")
		}
		var peerCatalog = NewCatalog(cfg.Channels)
		_ = peerCatalog.Select(job.Map)
		pr.session = NewSession(SessionConfig{
			Catalog: peerCatalog,
			EEPROM:  pr.eeprom,
			Radio:   pr.radio,
			Rx:      pr.rx,
			Logger:  discardLogger(),
		})
		pr.session.StartReceive()
	}

	var l = &mainLoop{
		session: session,
		peer:    pr,
		display: newDisplay(out),
		logger:  logger,
		tick:    cfg.Tick(),
		job:     job,
	}
	if e, ok := radio.(linkEnder); ok {
		l.ended = e.Done()
		l.ender = e
	}

	var final, runErr = l.run(ctx)
	if runErr != nil {
		return final, runErr
	}

	if pr != nil {
		return final, pr.verify(eeprom, session.CurrentMap(), logger)
	}

	return final, nil
}

type mainLoop struct {
	session *Session
	peer    *peer
	display *display
	logger  *log.Logger
	tick    time.Duration
	job     Job

	ended <-chan struct{}
	ender linkEnder
}

func (l *mainLoop) run(ctx context.Context) (Progress, error) {
	var ticker = time.NewTicker(l.tick)
	defer ticker.Stop()

	var keys <-chan keyInput
	if l.job.Interactive {
		var restore, k, err = readKeys(ctx, os.Stdin)
		if err != nil {
			return Progress{}, err
		}
		defer restore()
		keys = k
		l.logger.Info("Keys: m send, e receive/abort, up/down select map, q quit")
	} else if l.job.Send {
		l.session.StartSend()
	} else {
		l.session.StartReceive()
	}

	for {
		select {
		case <-ctx.Done():
			l.session.Abort()
			l.display.finish()
			return l.session.Progress(), ctx.Err()

		case <-l.ended:
			l.session.Abort()
			l.display.finish()
			var err = l.ender.Err()
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return l.session.Progress(), fmt.Errorf("link closed: %w", err)

		case <-l.session.Rx().Ready():
			_ = l.session.StorePacket() // Logged and counted by the session.

		case k := <-keys:
			if k.quit {
				l.session.Abort()
				l.display.finish()
				return l.session.Progress(), nil
			}
			l.session.ProcessKey(k.key, true, false, l.job.SwapUpDown)

		case <-ticker.C:
			_, _ = l.session.SendTick()
			if l.peer != nil {
				// The peer hears each packet as it goes out.
				_ = l.peer.session.StorePacket()
			}
		}

		if l.session.DisplayRequested() {
			var p = l.session.Observe()
			l.display.show(p)

			if p.State == StateComplete {
				if l.job.Interactive {
					continue
				}
				l.display.finish()
				return p, nil
			}
		}
	}
}

// verify compares what the loopback peer received with what was sent.
func (p *peer) verify(sent *EEPROM, m *TransferMap, logger *log.Logger) error {
	var got = p.session.Progress()
	logger.Info("Loopback receiver", "blocks", got.Blocks, "errors", got.Errors)

	for _, seg := range m.Segments {
		var n = int(seg.End) - int(seg.Start)
		var a = make([]byte, n)
		var b = make([]byte, n)
		if err := sent.ReadBuffer(seg.Start, a); err != nil {
			return err
		}
		if err := p.eeprom.ReadBuffer(seg.Start, b); err != nil {
			return err
		}
		if !bytes.Equal(a, b) {
			return fmt.Errorf("loopback: segment 0x%04X-0x%04X differs", seg.Start, seg.End)
		}
	}

	logger.Info("Loopback verified", "map", m.Label())
	return nil
}

// display shows progress on a terminal, or as log lines.
type display struct {
	w     io.Writer
	tty   bool
	width int
	tenth int
	drawn bool
}

func newDisplay(w io.Writer) *display {
	var d = &display{w: w, width: GaugeWidth / 2, tenth: -1}

	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		d.tty = true
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil {
			d.width = max(10, min(GaugeWidth, cols-len("RCV:100.00% E:99 [] ")))
		}
	}

	return d
}

func (d *display) show(p Progress) {
	if p.Total == 0 {
		return
	}

	if p.State == StateReady && p.Done() == 0 {
		if d.tty {
			fmt.Fprintf(d.w, "\r%-14s %-13s %*s", p.Map, p.State, d.width+2, "")
			d.drawn = true
		}
		return
	}

	if d.tty {
		fmt.Fprintf(d.w, "\r%-14s %-13s [%s]", p.Map, p, p.Gauge(d.width))
		d.drawn = true
		return
	}

	var tenth = int(p.Percent()) / 1000
	if tenth != d.tenth || p.State == StateComplete {
		d.tenth = tenth
		fmt.Fprintf(d.w, "%s %s\n", p.Map, p)
	}
}

func (d *display) finish() {
	if d.drawn {
		fmt.Fprintf(d.w, "\n")
		d.drawn = false
	}
}

type keyInput struct {
	key  Key
	quit bool
}

// decodeKeys turns terminal input into radio keys.  Unknown input is ignored.
func decodeKeys(b []byte) []keyInput {
	var keys []keyInput

	for i := 0; i < len(b); i++ {
		switch b[i] {
		case 'm', 'M', '\r':
			keys = append(keys, keyInput{key: KeyMenu})
		case 'e', 'E':
			keys = append(keys, keyInput{key: KeyExit})
		case 'k', 'u':
			keys = append(keys, keyInput{key: KeyUp})
		case 'j', 'd':
			keys = append(keys, keyInput{key: KeyDown})
		case 'q', 'Q', 0x03: // ^C arrives as a byte in raw mode.
			keys = append(keys, keyInput{quit: true})
		case 0x1b:
			if i+2 < len(b) && b[i+1] == '[' {
				switch b[i+2] {
				case 'A':
					keys = append(keys, keyInput{key: KeyUp})
				case 'B':
					keys = append(keys, keyInput{key: KeyDown})
				}
				i += 2
			} else {
				keys = append(keys, keyInput{key: KeyExit})
			}
		}
	}

	return keys
}

// readKeys puts a terminal in raw mode and delivers keys until ctx ends.
func readKeys(ctx context.Context, f *os.File) (func(), <-chan keyInput, error) {
	var fd = int(f.Fd())
	var restore = func() {}

	if term.IsTerminal(fd) {
		var old, err = term.MakeRaw(fd)
		if err != nil {
			return nil, nil, fmt.Errorf("keyboard: %w", err)
		}
		restore = func() { _ = term.Restore(fd, old) }
	}

	var ch = make(chan keyInput)

	go func() {
		var buf = make([]byte, 16)
		for {
			var n, err = f.Read(buf)
			for _, k := range decodeKeys(buf[:n]) {
				select {
				case ch <- k:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	return restore, ch, nil
}
