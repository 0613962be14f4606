package dfu

import (
	"context"

	"github.com/google/uuid"
)

// Profile names the DFU characteristics a bootloader exposes.
type Profile struct {
	ControlPoint uuid.UUID
	Packet       uuid.UUID
}

// Variant is a device family's way of detecting and entering its bootloader.
// Implementations are selected once, when the session is created.
type Variant interface {
	// Name identifies the variant in logs and errors
	Name() string

	// Profile returns the bootloader's control point and packet characteristics
	Profile() Profile

	// Detect reports whether the connected device runs the bootloader
	Detect(ctx context.Context, s *Session) (bool, error)

	// Enter reboots the application into the bootloader and leaves the
	// session connected to it
	Enter(ctx context.Context, s *Session) error
}

// ParseVariant returns the variant for "legacy" or "secure".
// Ruuvitag needs a device ID and is built with NewRuuvitag.
func ParseVariant(name string) (Variant, bool) {
	switch name {
	case "legacy":
		return Legacy{}, true
	case "secure", "":
		return Secure{}, true
	default:
		return nil, false
	}
}
