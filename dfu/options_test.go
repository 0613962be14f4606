package dfu

import (
	"testing"
	"time"

	"github.com/moffa90/go-nrfdfu/gatt"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Timeout)
	}
	if cfg.PacketSize != 20 {
		t.Errorf("PacketSize = %d, want 20", cfg.PacketSize)
	}
	if cfg.ReceiptInterval != 10 {
		t.Errorf("ReceiptInterval = %d, want 10", cfg.ReceiptInterval)
	}
	if cfg.ActivationSettle != time.Second {
		t.Errorf("ActivationSettle = %v, want 1s", cfg.ActivationSettle)
	}
	if cfg.RuuvitagRebootSettle != 10*time.Second {
		t.Errorf("RuuvitagRebootSettle = %v, want 10s", cfg.RuuvitagRebootSettle)
	}
	if cfg.AddressType != gatt.AddressRandom {
		t.Errorf("AddressType = %v, want random", cfg.AddressType)
	}
}

func TestOptions(t *testing.T) {
	tests := []struct {
		name  string
		opt   Option
		check func(Config) bool
	}{
		{
			name:  "timeout",
			opt:   WithTimeout(3 * time.Second),
			check: func(c Config) bool { return c.Timeout == 3*time.Second },
		},
		{
			name:  "non-positive timeout ignored",
			opt:   WithTimeout(0),
			check: func(c Config) bool { return c.Timeout == 10*time.Second },
		},
		{
			name:  "packet size",
			opt:   WithPacketSize(64),
			check: func(c Config) bool { return c.PacketSize == 64 },
		},
		{
			name:  "oversized packet ignored",
			opt:   WithPacketSize(MaxPacketSize + 1),
			check: func(c Config) bool { return c.PacketSize == 20 },
		},
		{
			name:  "receipts disabled",
			opt:   WithReceiptInterval(0),
			check: func(c Config) bool { return c.ReceiptInterval == 0 },
		},
		{
			name:  "negative interval ignored",
			opt:   WithReceiptInterval(-1),
			check: func(c Config) bool { return c.ReceiptInterval == 10 },
		},
		{
			name:  "public address",
			opt:   WithAddressType(gatt.AddressPublic),
			check: func(c Config) bool { return c.AddressType == gatt.AddressPublic },
		},
		{
			name:  "settles",
			opt:   func(c *Config) { WithActivationSettle(0)(c); WithLegacyRebootSettle(2 * time.Second)(c) },
			check: func(c Config) bool { return c.ActivationSettle == 0 && c.LegacyRebootSettle == 2*time.Second },
		},
		{
			name:  "verbose",
			opt:   WithVerbose(true),
			check: func(c Config) bool { return c.Verbose },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.opt(&cfg)
			if !tt.check(cfg) {
				t.Errorf("option not applied as expected: %+v", cfg)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateTransferringImage, "transferring-image"},
		{StateDone, "done"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
