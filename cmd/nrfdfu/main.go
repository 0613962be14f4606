// Command nrfdfu updates the application firmware of Nordic nRF51 devices
// over Bluetooth Low Energy.
//
// Usage:
//
//	nrfdfu -a <address> -f <image.hex|image.bin> -d <init.dat> [flags]
//	nrfdfu -a <address> -z <package.zip> [flags]
//	nrfdfu -dump-trace <file.trace>
//
// Examples:
//
//	# Secure bootloader with buttonless entry (default)
//	nrfdfu -a CD:E3:4A:47:1C:E4 -z app_dfu_package.zip
//
//	# Legacy bootloader, image and init packet as separate files
//	nrfdfu -legacy -a CD:E3:4A:47:1C:E4 -f app.hex -d app.dat
//
//	# Ruuvitag, recording all GATT traffic
//	nrfdfu -ruuvitag aa:bb:cc:dd:ee:ff:00:11 -a CD:E3:4A:47:1C:E4 -z ruuvi.zip -trace update.trace
//
// The exit code is 0 on success and 2 on any failure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/moffa90/go-nrfdfu/dfu"
	"github.com/moffa90/go-nrfdfu/firmware"
	"github.com/moffa90/go-nrfdfu/gatt"
	"github.com/moffa90/go-nrfdfu/gatt/goble"
	"github.com/moffa90/go-nrfdfu/internal/config"
	"github.com/moffa90/go-nrfdfu/internal/logging"
	"github.com/moffa90/go-nrfdfu/trace"
)

const (
	exitOK      = 0
	exitFailure = 2
)

// openTransport connects the radio. Tests replace it with a simulator.
var openTransport = func(log *zap.Logger, cfg *config.Config) (gatt.Transport, func(), error) {
	dev, err := newDevice()
	if err != nil {
		return nil, nil, fmt.Errorf("open bluetooth device: %w", err)
	}

	opts := []goble.Option{goble.WithLogger(log)}
	if cfg.PacketSize > 20 {
		opts = append(opts, goble.WithMTU(cfg.PacketSize+3))
	}

	release := func() {
		if err := dev.Stop(); err != nil {
			log.Debug("stop bluetooth device", zap.Error(err))
		}
	}
	return goble.New(dev, opts...), release, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// flags holds the raw command line values.
type flags struct {
	address     string
	addressType string
	image       string
	initPacket  string
	pkg         string
	ruuvitag    string
	secure      bool
	legacy      bool
	configPath  string
	logLevel    string
	logFormat   string
	verbose     bool
	timeout     time.Duration
	tracePath   string
	dumpTrace   string
}

func parseFlags(args []string, stderr io.Writer) (*flags, map[string]bool, error) {
	var f flags

	fs := flag.NewFlagSet("nrfdfu", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&f.address, "a", "", "Device address (shorthand)")
	fs.StringVar(&f.address, "address", "", "Device address, e.g. CD:E3:4A:47:1C:E4")
	fs.StringVar(&f.addressType, "address-type", "random", "Address type: random, public")
	fs.StringVar(&f.image, "f", "", "Firmware image (shorthand)")
	fs.StringVar(&f.image, "file", "", "Firmware image (.hex or .bin)")
	fs.StringVar(&f.initPacket, "d", "", "Init packet (shorthand)")
	fs.StringVar(&f.initPacket, "dat", "", "Init packet (.dat)")
	fs.StringVar(&f.pkg, "z", "", "DFU package (shorthand)")
	fs.StringVar(&f.pkg, "zip", "", "DFU package (.zip), instead of -file and -dat")
	fs.StringVar(&f.ruuvitag, "ruuvitag", "", "Ruuvitag device ID (8 colon-separated hex octets)")
	fs.BoolVar(&f.secure, "secure", false, "Secure bootloader with buttonless entry (default)")
	fs.BoolVar(&f.legacy, "legacy", false, "Legacy bootloader")
	fs.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "console", "Log format: console, json")
	fs.BoolVar(&f.verbose, "verbose", false, "Log every control point and packet write")
	fs.DurationVar(&f.timeout, "timeout", 10*time.Second, "Timeout for each device operation")
	fs.StringVar(&f.tracePath, "trace", "", "Record GATT traffic to this file")
	fs.StringVar(&f.dumpTrace, "dump-trace", "", "Print a recorded trace and exit")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() > 0 {
		return nil, nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return &f, set, nil
}

// merge applies explicitly set flags over the file configuration.
func (f *flags) merge(cfg *config.Config, set map[string]bool) error {
	if f.secure && f.legacy {
		return errors.New("-secure and -legacy are mutually exclusive")
	}

	if set["a"] || set["address"] {
		cfg.Address = f.address
	}
	if set["address-type"] {
		cfg.AddressType = f.addressType
	}
	if set["f"] || set["file"] {
		cfg.Image = f.image
	}
	if set["d"] || set["dat"] {
		cfg.Init = f.initPacket
	}
	if set["z"] || set["zip"] {
		cfg.Package = f.pkg
	}
	if set["ruuvitag"] {
		cfg.RuuvitagID = f.ruuvitag
	}
	switch {
	case f.legacy:
		cfg.Mode = config.ModeLegacy
	case f.secure:
		cfg.Mode = config.ModeSecure
	}
	if set["log-level"] {
		cfg.Log.Level = f.logLevel
	}
	if set["log-format"] {
		cfg.Log.Format = f.logFormat
	}
	if set["verbose"] {
		cfg.Verbose = f.verbose
	}
	if set["timeout"] {
		cfg.Timeout = f.timeout
	}
	if set["trace"] {
		cfg.Trace = f.tracePath
	}
	return nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	f, set, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "nrfdfu: %v\n", err)
		return exitFailure
	}

	if f.dumpTrace != "" {
		return dumpTrace(f.dumpTrace, stdout, stderr)
	}

	cfg := config.Defaults()
	if f.configPath != "" {
		if cfg, err = config.Load(f.configPath); err != nil {
			fmt.Fprintf(stderr, "nrfdfu: %v\n", err)
			return exitFailure
		}
	}
	if err := f.merge(cfg, set); err != nil {
		fmt.Fprintf(stderr, "nrfdfu: %v\n", err)
		return exitFailure
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "nrfdfu: %v\n", err)
		return exitFailure
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(stderr, "nrfdfu: %v\n", err)
		return exitFailure
	}
	defer func() { _ = log.Sync() }()

	if err := update(ctx, cfg, log, stdout); err != nil {
		log.Error("update failed", zap.Error(err))
		return exitFailure
	}
	return exitOK
}

// update runs one validated configuration against the radio.
func update(ctx context.Context, cfg *config.Config, log *zap.Logger, stdout io.Writer) error {
	variant, err := cfg.Variant()
	if err != nil {
		return err
	}
	addr, err := gatt.ParseAddress(cfg.Address)
	if err != nil {
		return err
	}

	pkg, err := loadPackage(cfg)
	if err != nil {
		return err
	}
	log.Info("firmware loaded",
		zap.Int("bytes", pkg.Size()),
		zap.String("crc32", fmt.Sprintf("0x%08X", pkg.CRC32())),
		zap.Int("init_bytes", len(pkg.InitPacket)),
	)

	transport, release, err := openTransport(log, cfg)
	if err != nil {
		return err
	}
	defer release()

	if cfg.Trace != "" {
		rec, err := trace.NewFileRecorder(cfg.Trace)
		if err != nil {
			return err
		}
		defer func() { _ = rec.Close() }()

		traced := trace.Wrap(transport, rec)
		log.Info("recording trace", zap.String("file", cfg.Trace), zap.String("session", traced.SessionID()))
		transport = traced
	}

	opts := append(cfg.Options(),
		dfu.WithLogger(logging.NewAdapter(log)),
		dfu.WithProgressCallback(newProgressPrinter(stdout)),
	)
	sess := dfu.NewSession(transport, addr, variant, opts...)

	log.Info("starting update", zap.Stringer("addr", addr), zap.String("variant", variant.Name()))
	if err := sess.Run(ctx, pkg); err != nil {
		fmt.Fprintln(stdout)
		return err
	}

	fmt.Fprintf(stdout, "\nUpdate complete: %d bytes, CRC32 0x%08X\n", pkg.Size(), sess.CRC32())
	return nil
}

func loadPackage(cfg *config.Config) (*firmware.Package, error) {
	if cfg.Package != "" {
		return firmware.LoadArchive(cfg.Package)
	}
	return firmware.Load(cfg.Image, cfg.Init)
}

func dumpTrace(path string, stdout, stderr io.Writer) int {
	events, err := trace.ReadFile(path)
	for _, e := range events {
		fmt.Fprintln(stdout, e.String())
	}
	if err != nil {
		fmt.Fprintf(stderr, "nrfdfu: %v\n", err)
		return exitFailure
	}
	return exitOK
}

// newProgressPrinter renders progress on a single terminal line.
func newProgressPrinter(w io.Writer) dfu.ProgressCallback {
	const width = 30
	var lastPhase string

	return func(p dfu.Progress) {
		if p.Phase != lastPhase {
			if lastPhase != "" {
				fmt.Fprintln(w)
			}
			lastPhase = p.Phase
		}

		filled := int(float64(width) * p.Percentage / 100)
		if filled > width {
			filled = width
		}
		bar := strings.Repeat("#", filled) + strings.Repeat(".", width-filled)

		fmt.Fprintf(w, "\r%-12s [%s] %5.1f%% %d/%d bytes %s",
			p.Phase, bar, p.Percentage, p.BytesSent, p.TotalBytes, p.ElapsedTime.Round(time.Millisecond))
	}
}
