package dfu

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/moffa90/go-nrfdfu/gatt"
	"github.com/moffa90/go-nrfdfu/protocol"
)

// DeviceID is a Ruuvitag device identifier.
type DeviceID [protocol.RuuvitagIDSize]byte

// ParseDeviceID parses exactly eight colon-separated hex octets,
// for example "aa:bb:cc:dd:ee:ff:00:11".
func ParseDeviceID(s string) (DeviceID, error) {
	var id DeviceID

	groups := strings.Split(s, ":")
	if len(groups) != len(id) {
		return id, fmt.Errorf("%w: %q has %d groups, want %d", ErrInvalidDeviceID, s, len(groups), len(id))
	}
	for i, g := range groups {
		if len(g) != 2 {
			return id, fmt.Errorf("%w: group %d %q is not two hex digits", ErrInvalidDeviceID, i+1, g)
		}
		b, err := hex.DecodeString(g)
		if err != nil {
			return id, fmt.Errorf("%w: group %d %q: %v", ErrInvalidDeviceID, i+1, g, err)
		}
		id[i] = b[0]
	}
	return id, nil
}

// String formats the identifier as lowercase colon-separated octets.
func (id DeviceID) String() string {
	groups := make([]string, len(id))
	for i, b := range id {
		groups[i] = hex.EncodeToString([]byte{b})
	}
	return strings.Join(groups, ":")
}

// Payload returns the UART RX write that identifies the device.
func (id DeviceID) Payload() []byte {
	return append(append([]byte(nil), protocol.RuuvitagIDTag...), id[:]...)
}

// Ruuvitag is a Secure device whose buttonless service only appears after
// the device has been identified.
type Ruuvitag struct {
	Secure
	ID DeviceID
}

// NewRuuvitag parses id and returns the variant.
//
// Example:
//
//	v, err := dfu.NewRuuvitag("aa:bb:cc:dd:ee:ff:00:11")
//	if err != nil {
//	    log.Fatal(err) // ErrInvalidDeviceID, before any radio activity
//	}
func NewRuuvitag(id string) (Ruuvitag, error) {
	parsed, err := ParseDeviceID(id)
	if err != nil {
		return Ruuvitag{}, err
	}
	return Ruuvitag{ID: parsed}, nil
}

// Name implements Variant.
func (Ruuvitag) Name() string { return "ruuvitag" }

// Detect implements Variant. The application exposes the UART TX
// characteristic before identification and the buttonless one after.
func (r Ruuvitag) Detect(ctx context.Context, s *Session) (bool, error) {
	for _, marker := range []uuid.UUID{protocol.ButtonlessUUID, protocol.UARTTXUUID} {
		app, err := s.Probe(ctx, marker)
		if err != nil {
			return false, err
		}
		if app {
			return false, nil
		}
	}
	return true, nil
}

// Enter implements Variant. Unless the buttonless characteristic is already
// exposed, the device ID is written first and the device reconnected at the
// same address after RuuvitagRebootSettle. The Secure entry follows.
func (r Ruuvitag) Enter(ctx context.Context, s *Session) error {
	identified, err := s.Probe(ctx, protocol.ButtonlessUUID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModeSwitchFailed, err)
	}

	if !identified {
		if err := r.identify(ctx, s); err != nil {
			return fmt.Errorf("%w: identify: %w", ErrModeSwitchFailed, err)
		}
	} else {
		s.logDebug("buttonless service present, skipping identification")
	}

	return r.Secure.Enter(ctx, s)
}

func (r Ruuvitag) identify(ctx context.Context, s *Session) error {
	tx, err := s.resolve(ctx, protocol.UARTTXUUID)
	if err != nil {
		return err
	}
	if err := s.subscribe(ctx, tx.CCCD, gatt.Notify); err != nil {
		return err
	}
	rx, err := s.resolve(ctx, protocol.UARTRXUUID)
	if err != nil {
		return err
	}
	if err := s.writeRequest(ctx, rx.Value, r.ID.Payload(), "device id"); err != nil {
		return err
	}

	s.logInfo("waiting for identification reboot", "settle", s.config.RuuvitagRebootSettle.String())
	if err := sleep(ctx, s.config.RuuvitagRebootSettle); err != nil {
		return err
	}
	return s.Reconnect(ctx, 0)
}
