package dfu

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/moffa90/go-nrfdfu/gatt"
	"github.com/moffa90/go-nrfdfu/protocol"
)

// PerformHandshake resolves the control point and packet characteristics of
// the variant's profile, subscribes to control point notifications and sets
// the packet receipt interval.
func (s *Session) PerformHandshake(ctx context.Context) error {
	s.setState(StateHandshaking)
	s.reportProgress(PhaseHandshaking, 4)

	profile := s.variant.Profile()

	control, err := s.resolve(ctx, profile.ControlPoint)
	if err != nil {
		return fmt.Errorf("%w: control point: %w", ErrHandshakeFailed, err)
	}
	packet, err := s.resolve(ctx, profile.Packet)
	if err != nil {
		return fmt.Errorf("%w: packet: %w", ErrHandshakeFailed, err)
	}
	s.control, s.packet = control, packet

	if err := s.subscribe(ctx, control.CCCD, gatt.Notify); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	prn := protocol.PacketReceiptNotifRequest(uint16(s.config.ReceiptInterval))
	if err := s.command(ctx, prn); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	s.logDebug("handshake complete",
		"control", fmt.Sprintf("0x%04X", control.Value),
		"packet", fmt.Sprintf("0x%04X", packet.Value),
		"receipt_interval", s.config.ReceiptInterval,
	)
	return nil
}

// StartDFU announces an application update of size bytes: START_DFU on the
// control point, the image size block on the packet characteristic, then
// the START_DFU response.
func (s *Session) StartDFU(ctx context.Context, size int) error {
	block, err := protocol.ApplicationSizeBlock(size)
	if err != nil {
		return fmt.Errorf("start dfu: %w", err)
	}

	if err := s.command(ctx, protocol.StartDFU(protocol.ImageTypeApplication)); err != nil {
		return fmt.Errorf("start dfu: %w", err)
	}
	if err := s.writePacket(block); err != nil {
		return fmt.Errorf("start dfu: image size: %w", err)
	}
	if err := s.awaitResponse(ctx, protocol.OpStartDFU); err != nil {
		return fmt.Errorf("start dfu: %w", err)
	}
	return nil
}

// SendInitPacket transfers the init packet between INIT_DFU_PARAMS receive
// and complete, and waits for the complete response.
func (s *Session) SendInitPacket(ctx context.Context, initPacket []byte) error {
	chunker, err := protocol.NewChunker(initPacket, s.config.PacketSize)
	if err != nil {
		return fmt.Errorf("init packet: %w", err)
	}

	s.setState(StateTransferringInit)
	s.reportProgress(PhaseInit, 6)

	if err := s.command(ctx, protocol.InitDFUParams(protocol.InitReceive)); err != nil {
		return fmt.Errorf("init packet: %w", err)
	}
	for {
		chunk, ok := chunker.Next()
		if !ok {
			break
		}
		if err := s.writePacket(chunk); err != nil {
			return fmt.Errorf("init packet at offset %d: %w", chunker.Offset()-len(chunk), err)
		}
	}
	if err := s.command(ctx, protocol.InitDFUParams(protocol.InitComplete)); err != nil {
		return fmt.Errorf("init packet: %w", err)
	}
	if err := s.awaitResponse(ctx, protocol.OpInitDFUParams); err != nil {
		return fmt.Errorf("init packet: %w", err)
	}

	s.logDebug("init packet sent", "bytes", len(initPacket))
	return nil
}

// SendImage streams the image after RECEIVE_FIRMWARE_IMAGE. After every
// ReceiptInterval packets it waits for a receipt whose offset must equal the
// bytes sent; a trailing partial batch gets one more wait, satisfied by a
// receipt or by the RECEIVE response.
func (s *Session) SendImage(ctx context.Context, image []byte) error {
	chunker, err := protocol.NewChunker(image, s.config.PacketSize)
	if err != nil {
		return fmt.Errorf("image: %w", err)
	}

	s.setState(StateTransferringImage)
	s.total = len(image)
	s.sent, s.packets, s.crc = 0, 0, 0
	s.reportProgress(PhaseTransferring, 8)

	if err := s.command(ctx, protocol.ReceiveFirmwareImage()); err != nil {
		return fmt.Errorf("image: %w", err)
	}

	interval := s.config.ReceiptInterval
	pending := 0
	for {
		chunk, ok := chunker.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}

		if err := s.writePacket(chunk); err != nil {
			return fmt.Errorf("image at offset %d: %w", s.sent, err)
		}
		s.sent += len(chunk)
		s.packets++
		s.crc = protocol.UpdateCRC32(s.crc, chunk)
		pending++

		// 8% to 95% while streaming
		s.reportProgress(PhaseTransferring, 8+float64(s.sent)/float64(s.total)*87)

		if interval > 0 && pending == interval {
			if err := s.awaitReceipt(ctx, false); err != nil {
				return fmt.Errorf("image: %w", err)
			}
			pending = 0
		}
	}

	if pending > 0 {
		if err := s.awaitReceipt(ctx, true); err != nil {
			return fmt.Errorf("image: %w", err)
		}
	}

	s.logDebug("image sent", "bytes", s.sent, "packets", s.packets, "crc32", fmt.Sprintf("0x%08X", s.crc))
	return nil
}

// ValidateAndActivate validates the received image and activates it. The
// device resets on ACTIVATE_AND_RESET, so that write is not required to be
// acknowledged.
func (s *Session) ValidateAndActivate(ctx context.Context) error {
	s.setState(StateValidating)
	s.reportProgress(PhaseValidating, 96)

	if err := s.command(ctx, protocol.ValidateFirmwareImage()); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if err := s.awaitResponse(ctx, protocol.OpValidateFirmwareImage); err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	s.setState(StateActivating)
	if err := s.command(ctx, protocol.ActivateAndReset()); err != nil {
		s.logDebug("activate not acknowledged, device is resetting", "error", err)
	}
	return nil
}

// classify maps a transport error to the session taxonomy. An expired wait
// is checked against the link: a dead link means the connection was lost.
func (s *Session) classify(err error) error {
	switch {
	case errors.Is(err, gatt.ErrNotConnected):
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	case gatt.IsTimeout(err) && !s.transport.IsAlive():
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	case gatt.IsTimeout(err):
		return fmt.Errorf("%w: %w", ErrTransportTimeout, err)
	default:
		return err
	}
}

// resolve looks up a characteristic. Not found and timeouts both mean the
// characteristic is absent, unless the link died.
func (s *Session) resolve(ctx context.Context, id uuid.UUID) (gatt.Handles, error) {
	rctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	h, err := s.transport.ResolveCharacteristic(rctx, id)
	if err == nil {
		return h, nil
	}

	if ctx.Err() != nil {
		return gatt.Handles{}, fmt.Errorf("resolve %s: %w", id, ctx.Err())
	}
	if errors.Is(err, gatt.ErrNotFound) || gatt.IsTimeout(err) {
		if !s.transport.IsAlive() {
			return gatt.Handles{}, fmt.Errorf("resolve %s: %w: %w", id, ErrConnectionLost, err)
		}
		return gatt.Handles{}, fmt.Errorf("resolve %s: %w: %w", id, ErrCharacteristicNotFound, err)
	}
	return gatt.Handles{}, fmt.Errorf("resolve %s: %w", id, s.classify(err))
}

func (s *Session) subscribe(ctx context.Context, cccd uint16, mode gatt.SubscribeMode) error {
	sctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	s.logVerbose("subscribe", "cccd", fmt.Sprintf("0x%04X", cccd), "mode", mode.String())
	if err := s.transport.Subscribe(sctx, cccd, mode); err != nil {
		return fmt.Errorf("subscribe %s at 0x%04X: %w: %w", mode, cccd, ErrWriteNotAcknowledged, s.classify(err))
	}
	return nil
}

func (s *Session) writeRequest(ctx context.Context, handle uint16, value []byte, what string) error {
	wctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	s.logVerbose("write request", "what", what, "handle", fmt.Sprintf("0x%04X", handle), "value", fmt.Sprintf("% X", value))
	if err := s.transport.WriteRequest(wctx, handle, value); err != nil {
		return fmt.Errorf("%s: %w: %w", what, ErrWriteNotAcknowledged, s.classify(err))
	}
	return nil
}

// command writes a control point command and waits for its write response.
func (s *Session) command(ctx context.Context, cmd protocol.Command) error {
	return s.writeRequest(ctx, s.control.Value, protocol.Encode(cmd), cmd.String())
}

func (s *Session) writePacket(data []byte) error {
	s.logVerbose("write packet", "handle", fmt.Sprintf("0x%04X", s.packet.Value), "bytes", len(data))
	if err := s.transport.WriteCommand(s.packet.Value, data); err != nil {
		if !s.transport.IsAlive() {
			return fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}
		return s.classify(err)
	}
	return nil
}

// awaitNotification waits for the next control point notification until
// ctx ends. Notifications from other handles are skipped. Only cancellation
// is returned as is; an expired deadline is classified like any other
// transport timeout.
func (s *Session) awaitNotification(ctx context.Context) (protocol.Notification, error) {
	for {
		if err := ctx.Err(); err != nil {
			return protocol.Notification{}, s.waitEnded(err, err)
		}
		n, err := s.transport.AwaitNotification(ctx)
		if err != nil {
			return protocol.Notification{}, s.waitEnded(ctx.Err(), err)
		}
		if n.Handle != s.control.Value {
			s.logDebug("ignoring notification", "handle", fmt.Sprintf("0x%04X", n.Handle))
			continue
		}

		parsed, err := protocol.ParseNotification(n.Value)
		if err != nil {
			return protocol.Notification{}, fmt.Errorf("notification % X: %w", n.Value, err)
		}
		s.logVerbose("notification", "value", parsed.String())
		return parsed, nil
	}
}

func (s *Session) waitEnded(ctxErr, err error) error {
	switch {
	case errors.Is(ctxErr, context.Canceled):
		return ctxErr
	case errors.Is(ctxErr, context.DeadlineExceeded) && !gatt.IsTimeout(err):
		return s.classify(fmt.Errorf("%w: %w", gatt.ErrTimeout, err))
	default:
		return s.classify(err)
	}
}

// awaitResponse waits for the response to op. Receipts and responses to
// other opcodes are skipped but do not extend the wait.
func (s *Session) awaitResponse(ctx context.Context, op byte) error {
	wctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	for {
		n, err := s.awaitNotification(wctx)
		if err != nil {
			return fmt.Errorf("await %s response: %w", protocol.OpcodeName(op), err)
		}
		if n.Response == nil || n.Response.RequestOpcode != op {
			s.logDebug("skipping notification", "waiting_for", protocol.OpcodeName(op), "got", n.String())
			continue
		}
		if !n.Response.OK() {
			return &protocol.ResponseError{Operation: protocol.OpcodeName(op), Status: n.Response.Status}
		}
		return nil
	}
}

// awaitReceipt waits for the receipt covering everything sent so far. When
// final is set the RECEIVE response also ends the wait.
func (s *Session) awaitReceipt(ctx context.Context, final bool) error {
	wctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	for {
		n, err := s.awaitNotification(wctx)
		if err != nil {
			return fmt.Errorf("await receipt at offset %d: %w", s.sent, err)
		}

		switch {
		case n.Receipt != nil:
			r := n.Receipt
			if int(r.BytesReceived) != s.sent {
				return &ReceiptMismatchError{Expected: s.sent, Reported: int(r.BytesReceived)}
			}
			if r.HasCRC && r.CRC != s.crc {
				return &ReceiptMismatchError{
					Expected:    s.sent,
					Reported:    int(r.BytesReceived),
					ExpectedCRC: s.crc,
					ReportedCRC: r.CRC,
					HasCRC:      true,
				}
			}
			return nil

		case n.Response != nil && n.Response.RequestOpcode == protocol.OpReceiveFirmwareImage:
			if !n.Response.OK() {
				return &protocol.ResponseError{Operation: protocol.OpcodeName(protocol.OpReceiveFirmwareImage), Status: n.Response.Status}
			}
			if final {
				return nil
			}
			s.logDebug("image response before receipt", "offset", s.sent)

		default:
			s.logDebug("skipping notification", "waiting_for", "receipt", "got", n.String())
		}
	}
}
