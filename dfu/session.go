package dfu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/moffa90/go-nrfdfu/firmware"
	"github.com/moffa90/go-nrfdfu/gatt"
)

// Session drives one firmware update of one device. It owns at most one
// transport connection at a time and releases it on every exit path of Run.
//
// A Session is single-use and not safe for concurrent use.
type Session struct {
	transport gatt.Transport
	variant   Variant
	config    Config

	base gatt.Address
	addr gatt.Address

	state     State
	mode      Mode
	err       error
	connected bool

	control gatt.Handles
	packet  gatt.Handles

	sent      int
	packets   int
	total     int
	crc       uint32
	startTime time.Time
}

// NewSession creates a session for the device whose application advertises
// at addr. The variant selects how the bootloader is detected and entered;
// nil means Secure.
//
// Example:
//
//	sess := dfu.NewSession(transport, gatt.MustParseAddress("C1:02:03:04:05:06"), dfu.Secure{},
//	    dfu.WithProgressCallback(progressFunc),
//	    dfu.WithTimeout(20*time.Second),
//	)
func NewSession(transport gatt.Transport, addr gatt.Address, variant Variant, opts ...Option) *Session {
	if transport == nil {
		panic("transport cannot be nil")
	}
	if variant == nil {
		variant = Secure{}
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Session{
		transport: transport,
		variant:   variant,
		config:    cfg,
		base:      addr,
		addr:      addr,
	}
}

// Run performs the complete update sequence:
//  1. Validate the package (no transport activity on failure)
//  2. Connect at the base address, or at base+1 if that fails
//  3. Detect the running firmware and enter the bootloader if needed
//  4. Handshake, start the update and send the init packet
//  5. Stream the image with receipt flow control
//  6. Validate and activate
//
// The connection is released before Run returns, whatever the outcome.
//
// Example:
//
//	pkg, _ := firmware.Load("app.bin", "app.dat")
//	if err := sess.Run(ctx, pkg); err != nil {
//	    log.Fatal(err)
//	}
func (s *Session) Run(ctx context.Context, pkg *firmware.Package) (err error) {
	if pkg == nil {
		return s.finish(errors.New("firmware package cannot be nil"))
	}
	if err := pkg.Validate(); err != nil {
		return s.finish(err)
	}

	s.startTime = time.Now()
	s.total = pkg.Size()

	defer func() {
		if derr := s.Disconnect(); derr != nil {
			s.logDebug("disconnect failed", "error", derr)
		}
		err = s.finish(err)
	}()

	s.reportProgress(PhaseConnecting, 0)

	if err := s.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		next := s.base.Add(1)
		s.logInfo("connect failed, retrying at next address", "address", next.String(), "error", err)

		if err := s.connectAt(ctx, next); err != nil {
			return err
		}
		// Only a bootloader advertises at base+1, so detection is skipped.
		s.mode = ModeBootloader
		s.setState(StateModeKnown)
	} else {
		mode, err := s.DetectMode(ctx)
		if err != nil {
			return fmt.Errorf("detect mode: %w", err)
		}
		if mode == ModeApplication {
			if err := s.SwitchMode(ctx); err != nil {
				return err
			}
		}
	}

	if err := s.PerformHandshake(ctx); err != nil {
		return err
	}
	if err := s.StartDFU(ctx, pkg.Size()); err != nil {
		return err
	}
	if err := s.SendInitPacket(ctx, pkg.InitPacket); err != nil {
		return err
	}
	if err := s.SendImage(ctx, pkg.Image); err != nil {
		return err
	}
	return s.ValidateAndActivate(ctx)
}

// Connect opens the transport at the session's current address.
// A timeout is reported as ErrTransportTimeout; retry policy is the caller's.
func (s *Session) Connect(ctx context.Context) error {
	return s.connectAt(ctx, s.addr)
}

// Reconnect releases the current connection and connects at the current
// address plus delta.
func (s *Session) Reconnect(ctx context.Context, delta int64) error {
	if err := s.Disconnect(); err != nil {
		s.logDebug("disconnect before reconnect failed", "error", err)
	}
	return s.connectAt(ctx, s.addr.Add(delta))
}

// Disconnect releases the connection. It calls the transport at most once per
// connection and is a no-op when nothing is held.
func (s *Session) Disconnect() error {
	if !s.connected {
		return nil
	}
	s.connected = false
	s.control = gatt.Handles{}
	s.packet = gatt.Handles{}

	err := s.transport.Disconnect()
	if !s.state.Terminal() {
		s.setState(StateDisconnected)
	}
	s.logDebug("disconnected", "address", s.addr.String())
	return err
}

// DetectMode asks the variant which firmware is running.
func (s *Session) DetectMode(ctx context.Context) (Mode, error) {
	inBootloader, err := s.variant.Detect(ctx, s)
	if err != nil {
		return ModeUnknown, err
	}

	s.mode = ModeApplication
	if inBootloader {
		s.mode = ModeBootloader
	}
	s.setState(StateModeKnown)
	s.logInfo("mode detected", "mode", s.mode.String(), "variant", s.variant.Name())

	return s.mode, nil
}

// SwitchMode commands the application into the bootloader through the
// variant and leaves the session connected to the bootloader.
func (s *Session) SwitchMode(ctx context.Context) error {
	s.setState(StateSwitchingMode)
	s.reportProgress(PhaseSwitching, 2)

	if err := s.variant.Enter(ctx, s); err != nil {
		if errors.Is(err, ErrModeSwitchFailed) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrModeSwitchFailed, s.variant.Name(), err)
	}

	s.mode = ModeBootloader
	s.setState(StateModeKnown)
	return nil
}

// Probe reports whether the connected peer exposes the characteristic.
// Absence, whether reported as not found or as a resolve timeout, is false.
func (s *Session) Probe(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.resolve(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrConnectionLost):
		return false, err
	case errors.Is(err, ErrCharacteristicNotFound):
		return false, nil
	default:
		return false, err
	}
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Mode returns the detected mode.
func (s *Session) Mode() Mode {
	return s.mode
}

// Address returns the address of the current or last connection.
func (s *Session) Address() gatt.Address {
	return s.addr
}

// Err returns the failure reason once the session is in StateFailed.
func (s *Session) Err() error {
	return s.err
}

// CRC32 returns the running CRC-32 of the image bytes sent so far.
func (s *Session) CRC32() uint32 {
	return s.crc
}

func (s *Session) connectAt(ctx context.Context, addr gatt.Address) error {
	if s.connected {
		if err := s.Disconnect(); err != nil {
			s.logDebug("disconnect before connect failed", "error", err)
		}
	}

	cctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	s.logDebug("connecting", "address", addr.String(), "type", s.config.AddressType.String())
	if err := s.transport.Connect(cctx, addr, s.config.AddressType); err != nil {
		if gatt.IsTimeout(err) {
			return fmt.Errorf("connect %s: %w: %w", addr, ErrTransportTimeout, err)
		}
		return fmt.Errorf("connect %s: %w", addr, err)
	}

	s.addr = addr
	s.connected = true
	s.setState(StateConnected)
	s.logInfo("connected", "address", addr.String())
	return nil
}

// finish moves the session into its terminal state.
func (s *Session) finish(err error) error {
	if err != nil {
		s.err = err
		s.setState(StateFailed)
		s.logError("update failed", "error", err)
		return err
	}

	s.setState(StateDone)
	s.reportProgress(PhaseComplete, 100)
	s.logInfo("update complete",
		"bytes", s.sent,
		"packets", s.packets,
		"crc32", fmt.Sprintf("0x%08X", s.crc),
		"elapsed", time.Since(s.startTime).String(),
	)
	return nil
}

func (s *Session) setState(next State) {
	if s.state == next {
		return
	}
	s.logInfo("state", "from", s.state.String(), "to", next.String())
	s.state = next
}

// reportProgress calls the progress callback if configured.
func (s *Session) reportProgress(phase string, percentage float64) {
	if s.config.ProgressCallback == nil {
		return
	}
	var elapsed time.Duration
	if !s.startTime.IsZero() {
		elapsed = time.Since(s.startTime)
	}
	s.config.ProgressCallback(Progress{
		Phase:       phase,
		BytesSent:   s.sent,
		TotalBytes:  s.total,
		Packets:     s.packets,
		Percentage:  percentage,
		ElapsedTime: elapsed,
	})
}

// logVerbose logs protocol traffic when verbose logging is enabled.
func (s *Session) logVerbose(msg string, keysAndValues ...interface{}) {
	if s.config.Verbose {
		s.logDebug(msg, keysAndValues...)
	}
}

// logDebug logs a debug message if a logger is configured.
func (s *Session) logDebug(msg string, keysAndValues ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (s *Session) logInfo(msg string, keysAndValues ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (s *Session) logError(msg string, keysAndValues ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Error(msg, keysAndValues...)
	}
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
