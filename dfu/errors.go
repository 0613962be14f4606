package dfu

import (
	"errors"
	"fmt"
)

// Failure classes. Every error returned by a Session wraps at least one of
// these (or protocol.ErrEmptyImage / a firmware input error), so callers can
// branch with errors.Is.
var (
	// ErrTransportTimeout indicates a wait expired while the link was still up.
	ErrTransportTimeout = errors.New("transport timeout")

	// ErrCharacteristicNotFound indicates the peer lacks a required characteristic.
	ErrCharacteristicNotFound = errors.New("characteristic not found")

	// ErrWriteNotAcknowledged indicates a write request got no write response.
	ErrWriteNotAcknowledged = errors.New("write not acknowledged")

	// ErrReceiptMismatch indicates a packet receipt disagreed with the bytes sent.
	ErrReceiptMismatch = errors.New("receipt mismatch")

	// ErrConnectionLost indicates the link dropped during an operation.
	ErrConnectionLost = errors.New("connection lost")

	// ErrModeSwitchFailed indicates the device could not be moved into the bootloader.
	ErrModeSwitchFailed = errors.New("mode switch failed")

	// ErrInvalidDeviceID indicates a malformed Ruuvitag device identifier.
	ErrInvalidDeviceID = errors.New("invalid device id")

	// ErrHandshakeFailed indicates the control point could not be prepared.
	ErrHandshakeFailed = errors.New("handshake failed")
)

// ReceiptMismatchError reports a packet receipt whose offset (or CRC, when
// the bootloader sends one) differs from what was sent.
type ReceiptMismatchError struct {
	Expected int
	Reported int

	// ExpectedCRC and ReportedCRC are set when the receipt carried a CRC
	ExpectedCRC uint32
	ReportedCRC uint32
	HasCRC      bool
}

func (e *ReceiptMismatchError) Error() string {
	if e.Expected == e.Reported && e.HasCRC {
		return fmt.Sprintf("receipt mismatch at offset %d: crc 0x%08X, expected 0x%08X",
			e.Expected, e.ReportedCRC, e.ExpectedCRC)
	}
	return fmt.Sprintf("receipt mismatch: device reported %d bytes, sent %d", e.Reported, e.Expected)
}

// Is makes errors.Is(err, ErrReceiptMismatch) match.
func (e *ReceiptMismatchError) Is(target error) bool {
	return target == ErrReceiptMismatch
}
