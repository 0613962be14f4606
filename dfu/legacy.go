package dfu

import (
	"context"
	"fmt"

	"github.com/moffa90/go-nrfdfu/gatt"
	"github.com/moffa90/go-nrfdfu/protocol"
)

// Legacy is the SDK 11 bootloader. The application exposes the DFU control
// point itself and the bootloader keeps the application's address.
type Legacy struct{}

// Name implements Variant.
func (Legacy) Name() string { return "legacy" }

// Profile implements Variant.
func (Legacy) Profile() Profile {
	return Profile{
		ControlPoint: protocol.LegacyControlPointUUID,
		Packet:       protocol.LegacyPacketUUID,
	}
}

// Detect implements Variant. Application firmware exposes the UART TX
// characteristic; the bootloader does not.
func (Legacy) Detect(ctx context.Context, s *Session) (bool, error) {
	app, err := s.Probe(ctx, protocol.UARTTXUUID)
	if err != nil {
		return false, err
	}
	return !app, nil
}

// Enter implements Variant. It writes START_DFU for an application image to
// the application's control point, waits for the reboot and reconnects at
// the same address.
func (Legacy) Enter(ctx context.Context, s *Session) error {
	cp, err := s.resolve(ctx, protocol.LegacyControlPointUUID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModeSwitchFailed, err)
	}
	if err := s.subscribe(ctx, cp.CCCD, gatt.Notify); err != nil {
		return fmt.Errorf("%w: %w", ErrModeSwitchFailed, err)
	}

	trigger := protocol.StartDFU(protocol.ImageTypeApplication)
	if err := s.writeRequest(ctx, cp.Value, protocol.Encode(trigger), "bootloader trigger"); err != nil {
		return fmt.Errorf("%w: %w", ErrModeSwitchFailed, err)
	}

	s.logInfo("waiting for bootloader", "settle", s.config.LegacyRebootSettle.String())
	if err := sleep(ctx, s.config.LegacyRebootSettle); err != nil {
		return err
	}

	if err := s.Reconnect(ctx, 0); err != nil {
		return fmt.Errorf("%w: %w", ErrModeSwitchFailed, err)
	}
	return nil
}
