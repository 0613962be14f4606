package dfu

import (
	"time"

	"github.com/moffa90/go-nrfdfu/gatt"
	"github.com/moffa90/go-nrfdfu/protocol"
)

// MaxPacketSize is the largest packet write accepted by WithPacketSize
// (ATT MTU 247 minus the 3-byte write header).
const MaxPacketSize = 244

// Config holds the session configuration.
type Config struct {
	// ProgressCallback is called during Run to report progress (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// Timeout bounds every wait: connect, resolve, write acknowledgement and notification
	Timeout time.Duration

	// PacketSize is the payload of each packet characteristic write
	PacketSize int

	// ReceiptInterval is the number of packets between receipt notifications (0 disables)
	ReceiptInterval int

	// ActivationSettle is the wait after the buttonless trigger before reconnecting
	ActivationSettle time.Duration

	// RuuvitagRebootSettle is the wait after writing the Ruuvitag device ID
	RuuvitagRebootSettle time.Duration

	// LegacyRebootSettle is the wait after the legacy bootloader trigger
	LegacyRebootSettle time.Duration

	// AddressType is used for every connection attempt
	AddressType gatt.AddressType

	// Verbose logs every control point and packet write at debug level
	Verbose bool
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Timeout:              10 * time.Second,
		PacketSize:           protocol.DefaultPacketSize,
		ReceiptInterval:      protocol.DefaultReceiptInterval,
		ActivationSettle:     1 * time.Second,
		RuuvitagRebootSettle: 10 * time.Second,
		LegacyRebootSettle:   1 * time.Second,
		AddressType:          gatt.AddressRandom,
	}
}

// Option is a functional option for configuring the Session.
type Option func(*Config)

// WithProgressCallback sets a callback function to track update progress.
//
// Example:
//
//	sess := dfu.NewSession(transport, addr, dfu.Secure{},
//	    dfu.WithProgressCallback(func(p dfu.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the session operations.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTimeout sets the timeout applied to every wait.
//
// Example:
//
//	sess := dfu.NewSession(transport, addr, dfu.Secure{}, dfu.WithTimeout(20*time.Second))
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

// WithPacketSize sets the payload size of packet writes.
// Default is 20 bytes (default ATT MTU).
func WithPacketSize(size int) Option {
	return func(c *Config) {
		if size > 0 && size <= MaxPacketSize {
			c.PacketSize = size
		}
	}
}

// WithReceiptInterval sets the packet receipt notification interval.
// Zero disables receipts; the transfer then waits once, after the last packet.
func WithReceiptInterval(packets int) Option {
	return func(c *Config) {
		if packets >= 0 && packets <= 0xFFFF {
			c.ReceiptInterval = packets
		}
	}
}

// WithActivationSettle sets the wait after the buttonless trigger.
func WithActivationSettle(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.ActivationSettle = d
		}
	}
}

// WithRuuvitagRebootSettle sets the wait after the Ruuvitag device ID write.
func WithRuuvitagRebootSettle(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.RuuvitagRebootSettle = d
		}
	}
}

// WithLegacyRebootSettle sets the wait after the legacy bootloader trigger.
func WithLegacyRebootSettle(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.LegacyRebootSettle = d
		}
	}
}

// WithAddressType sets the address type used to connect.
func WithAddressType(typ gatt.AddressType) Option {
	return func(c *Config) {
		c.AddressType = typ
	}
}

// WithVerbose enables per-write debug logging.
func WithVerbose(verbose bool) Option {
	return func(c *Config) {
		c.Verbose = verbose
	}
}
