package dfu

import (
	"context"
	"fmt"

	"github.com/moffa90/go-nrfdfu/gatt"
	"github.com/moffa90/go-nrfdfu/protocol"
)

// Secure is the buttonless bootloader. The application exposes the
// buttonless characteristic and the bootloader advertises at address+1.
type Secure struct{}

// Name implements Variant.
func (Secure) Name() string { return "secure" }

// Profile implements Variant.
func (Secure) Profile() Profile {
	return Profile{
		ControlPoint: protocol.SecureControlPointUUID,
		Packet:       protocol.SecurePacketUUID,
	}
}

// Detect implements Variant. Without the buttonless characteristic the
// device is assumed to be in the bootloader.
func (Secure) Detect(ctx context.Context, s *Session) (bool, error) {
	app, err := s.Probe(ctx, protocol.ButtonlessUUID)
	if err != nil {
		return false, err
	}
	return !app, nil
}

// Enter implements Variant: indications on the buttonless characteristic,
// the activation byte, the activation settle, then address+1.
func (Secure) Enter(ctx context.Context, s *Session) error {
	bl, err := s.resolve(ctx, protocol.ButtonlessUUID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModeSwitchFailed, err)
	}
	if err := s.subscribe(ctx, bl.CCCD, gatt.Indicate); err != nil {
		return fmt.Errorf("%w: %w", ErrModeSwitchFailed, err)
	}
	if err := s.writeRequest(ctx, bl.Value, []byte{protocol.ButtonlessEnterBootloader}, "buttonless trigger"); err != nil {
		return fmt.Errorf("%w: %w", ErrModeSwitchFailed, err)
	}

	s.logInfo("waiting for bootloader", "settle", s.config.ActivationSettle.String())
	if err := sleep(ctx, s.config.ActivationSettle); err != nil {
		return err
	}

	if err := s.Reconnect(ctx, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrModeSwitchFailed, err)
	}
	return nil
}
