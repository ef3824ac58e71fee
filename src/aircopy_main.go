package aircopy

/*------------------------------------------------------------------
 *
 * Name:	AircopyMain
 *
 * Purpose:	Command line front end: copy memory channels or settings
 *		between radios (or radio images) over the air.
 *
 * Usage:	aircopy -s -m bank0 -i flash.bin -l serial:/dev/ttyUSB0
 *		aircopy -r -m settings -i flash.bin -l listen::7373
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

func AircopyMain() {
	var configFile = pflag.StringP("config", "c", "", "Configuration file.  Default is the first aircopy.yaml found.")
	var image = pflag.StringP("image", "i", "", "Flash image file to send from or receive into.")
	var mapName = pflag.StringP("map", "m", "", "Transfer map, name or number.  See --list-maps.")
	var send = pflag.BoolP("send", "s", false, "Send the map.")
	var receive = pflag.BoolP("receive", "r", false, "Receive the map.")
	var interactive = pflag.BoolP("keys", "k", false, "Use the keyboard like the radio keys instead of -s/-r.")
	var swapKeys = pflag.Bool("swap-keys", false, "Reverse the up/down keys.")
	var link = pflag.StringP("link", "l", "", "loopback, pty, serial:DEV[:BAUD], listen:[HOST]:PORT or dial:HOST:PORT.")
	var pa = pflag.String("pa", "", "Power amp control, e.g. rts:/dev/ttyUSB0 or gpio:gpiochip0:17.")
	var capture = pflag.String("capture", "", "Append a JSON record of each transfer to this file.")
	var timestampFormat = pflag.StringP("timestamp-format", "T", "", "'strftime' format for capture time stamps.")
	var channels = pflag.Int("channels", 0, "Number of memory channels in the radio.")
	var frequency = pflag.Uint32P("frequency", "f", 0, "Frequency in Hz.")
	var listMaps = pflag.Bool("list-maps", false, "List the transfer maps and exit.")
	var listPorts = pflag.Bool("list-ports", false, "List USB serial ports and exit.")
	var verbose = pflag.BoolP("verbose", "v", false, "Debug logging.")
	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - Copy channels and settings between radios over the air.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options] -s|-r|-k\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	var cfg, err = LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	if *image != "" {
		cfg.Image = *image
	}
	if *link != "" {
		cfg.Link = *link
	}
	if *pa != "" {
		cfg.PA = *pa
	}
	if *capture != "" {
		cfg.Capture.File = *capture
	}
	if *timestampFormat != "" {
		cfg.Capture.TimestampFormat = *timestampFormat
	}
	if *channels != 0 {
		cfg.Channels = *channels
	}
	if *frequency != 0 {
		cfg.Frequency = *frequency
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	var logger = NewLogger(os.Stderr, cfg.LogLevel)
	if cfg.Path != "" {
		logger.Debug("Configuration", "file", cfg.Path)
	}

	if *listMaps {
		printMaps(NewCatalog(cfg.Channels))
		return
	}

	if *listPorts {
		var ports, err = ListSerialPorts()
		if err != nil {
			logger.Error("Listing serial ports", "err", err)
			os.Exit(1)
		}
		PrintPorts(os.Stdout, ports)
		return
	}

	var modes = 0
	for _, b := range []bool{*send, *receive, *interactive} {
		if b {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintf(os.Stderr, "Exactly one of -s, -r or -k is needed.\n\n")
		pflag.Usage()
		os.Exit(1)
	}

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var job = Job{Send: *send, Map: *mapName, Interactive: *interactive, SwapUpDown: *swapKeys}

	var p, runErr = RunTransfer(ctx, cfg, job, logger, os.Stdout)
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("Interrupted", "progress", p.String())
			os.Exit(130)
		}
		logger.Error("Transfer failed", "err", runErr)
		os.Exit(1)
	}

	logger.Info("Done", "map", p.Map, "blocks", p.Blocks, "errors", p.Errors)

	if p.Errors > 0 {
		os.Exit(2)
	}
}

func printMaps(c *Catalog) {
	for i, m := range c.Maps() {
		fmt.Printf("%2d  %-9s %-14s %2d blocks ", i, m.Name, m.Label(), m.TotalBlocks)
		for j, seg := range m.Segments {
			if j > 0 {
				fmt.Printf(", ")
			}
			fmt.Printf("%04X-%04X %s", seg.Start, seg.End, seg.Mode)
		}
		fmt.Printf("\n")
	}
}
