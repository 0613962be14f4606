package protocol

import (
	"errors"
	"fmt"
)

// ErrEmptyImage is returned when an image or init packet has no bytes.
var ErrEmptyImage = errors.New("empty image")

// ResponseError represents a non-success response from the bootloader.
type ResponseError struct {
	// Operation is the command that failed
	Operation string

	// Status is the status code from the response notification
	Status byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s failed: %s (0x%02X)", e.Operation, StatusName(e.Status), e.Status)
}

// IsResponseError returns true if err is or wraps a ResponseError.
func IsResponseError(err error) bool {
	var re *ResponseError
	return errors.As(err, &re)
}

// StatusName returns a human-readable name for a status code.
func StatusName(code byte) string {
	switch code {
	case StatusSuccess:
		return "success"
	case StatusInvalidState:
		return "invalid state"
	case StatusNotSupported:
		return "not supported"
	case StatusDataSizeExceedsLimit:
		return "data size exceeds limit"
	case StatusCRCError:
		return "CRC error"
	case StatusOperationFailed:
		return "operation failed"
	default:
		return fmt.Sprintf("unknown status code 0x%02X", code)
	}
}

// OpcodeName returns the protocol name of an opcode.
func OpcodeName(op byte) string {
	switch op {
	case OpStartDFU:
		return "START_DFU"
	case OpInitDFUParams:
		return "INIT_DFU_PARAMS"
	case OpReceiveFirmwareImage:
		return "RECEIVE_FIRMWARE_IMAGE"
	case OpValidateFirmwareImage:
		return "VALIDATE_FIRMWARE_IMAGE"
	case OpActivateAndReset:
		return "ACTIVATE_AND_RESET"
	case OpSystemReset:
		return "SYSTEM_RESET"
	case OpReportReceivedImageSize:
		return "REPORT_RECEIVED_IMAGE_SIZE"
	case OpPacketReceiptNotifRequest:
		return "PKT_RCPT_NOTIF_REQ"
	case OpResponse:
		return "RESPONSE"
	case OpPacketReceiptNotif:
		return "PKT_RCPT_NOTIF"
	default:
		return fmt.Sprintf("opcode 0x%02X", op)
	}
}
