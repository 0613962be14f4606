// Package config loads nrfdfu settings from a YAML file.
//
// Example file:
//
//	address: "CD:E3:4A:47:1C:E4"
//	mode: secure
//	package: app_dfu_package.zip
//	timeout: 20s
//	receipt_interval: 10
//	settle:
//	  activation: 2s
//	log:
//	  level: debug
//	  format: console
//
// Command line flags override values read from the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moffa90/go-nrfdfu/dfu"
	"github.com/moffa90/go-nrfdfu/gatt"
	"github.com/moffa90/go-nrfdfu/internal/logging"
)

// Update modes.
const (
	ModeSecure   = "secure"
	ModeLegacy   = "legacy"
	ModeRuuvitag = "ruuvitag"
)

// Config holds everything needed to run one update.
type Config struct {
	// Target
	Address     string `yaml:"address"`
	AddressType string `yaml:"address_type"` // "random" or "public"
	Mode        string `yaml:"mode"`         // "secure", "legacy" or "ruuvitag"
	RuuvitagID  string `yaml:"ruuvitag_id"`  // aa:bb:cc:dd:ee:ff:00:11

	// Firmware: either Image and Init, or Package
	Image   string `yaml:"image"`
	Init    string `yaml:"init"`
	Package string `yaml:"package"`

	// Transfer
	Timeout         time.Duration `yaml:"timeout"`
	PacketSize      int           `yaml:"packet_size"`
	ReceiptInterval int           `yaml:"receipt_interval"`
	Settle          SettleConfig  `yaml:"settle"`
	Verbose         bool          `yaml:"verbose"`

	Log LogConfig `yaml:"log"`

	// Trace is a file that receives the CBOR GATT trace (empty disables)
	Trace string `yaml:"trace"`
}

// SettleConfig holds the waits between rebooting a device and reconnecting.
type SettleConfig struct {
	Activation     time.Duration `yaml:"activation"`
	RuuvitagReboot time.Duration `yaml:"ruuvitag_reboot"`
	LegacyReboot   time.Duration `yaml:"legacy_reboot"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Defaults returns a config with the session defaults filled in.
func Defaults() *Config {
	return &Config{
		AddressType:     gatt.AddressRandom.String(),
		Mode:            ModeSecure,
		Timeout:         10 * time.Second,
		PacketSize:      20,
		ReceiptInterval: 10,
		Settle: SettleConfig{
			Activation:     1 * time.Second,
			RuuvitagReboot: 10 * time.Second,
			LegacyReboot:   1 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatConsole,
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value; unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the config is complete and consistent.
func (c *Config) Validate() error {
	if c.Address == "" {
		return errors.New("address is required")
	}
	if _, err := gatt.ParseAddress(c.Address); err != nil {
		return err
	}
	if _, err := gatt.ParseAddressType(c.AddressType); err != nil {
		return err
	}

	if c.Package != "" {
		if c.Image != "" || c.Init != "" {
			return errors.New("package is mutually exclusive with image and init")
		}
	} else if c.Image == "" || c.Init == "" {
		return errors.New("image and init are both required without a package")
	}

	if _, err := c.Variant(); err != nil {
		return err
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.PacketSize < 1 || c.PacketSize > dfu.MaxPacketSize {
		return fmt.Errorf("packet_size must be 1-%d, got %d", dfu.MaxPacketSize, c.PacketSize)
	}
	if c.ReceiptInterval < 0 || c.ReceiptInterval > 0xFFFF {
		return fmt.Errorf("receipt_interval must be 0-65535, got %d", c.ReceiptInterval)
	}
	if c.Settle.Activation < 0 || c.Settle.RuuvitagReboot < 0 || c.Settle.LegacyReboot < 0 {
		return errors.New("settle durations must not be negative")
	}

	return nil
}

// Variant builds the mode switch variant. A Ruuvitag ID selects the
// Ruuvitag variant unless the mode is legacy.
func (c *Config) Variant() (dfu.Variant, error) {
	mode := strings.ToLower(c.Mode)

	if mode == ModeRuuvitag || (c.RuuvitagID != "" && mode != ModeLegacy) {
		if c.RuuvitagID == "" {
			return nil, errors.New("ruuvitag mode requires ruuvitag_id")
		}
		r, err := dfu.NewRuuvitag(c.RuuvitagID)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	if c.RuuvitagID != "" {
		return nil, errors.New("ruuvitag_id cannot be combined with legacy mode")
	}

	v, ok := dfu.ParseVariant(mode)
	if !ok {
		return nil, fmt.Errorf("unknown mode %q", c.Mode)
	}
	return v, nil
}

// Options returns the session options described by the config.
func (c *Config) Options() []dfu.Option {
	typ, _ := gatt.ParseAddressType(c.AddressType)

	return []dfu.Option{
		dfu.WithTimeout(c.Timeout),
		dfu.WithPacketSize(c.PacketSize),
		dfu.WithReceiptInterval(c.ReceiptInterval),
		dfu.WithActivationSettle(c.Settle.Activation),
		dfu.WithRuuvitagRebootSettle(c.Settle.RuuvitagReboot),
		dfu.WithLegacyRebootSettle(c.Settle.LegacyReboot),
		dfu.WithAddressType(typ),
		dfu.WithVerbose(c.Verbose),
	}
}
