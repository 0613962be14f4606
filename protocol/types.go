package protocol

import "fmt"

// Command is a control point request: an opcode and its little-endian parameters.
type Command struct {
	// Opcode is the wire opcode (one of the Op* constants)
	Opcode byte

	// Params is the parameter block, already little-endian encoded
	Params []byte
}

// String returns the opcode name.
func (c Command) String() string {
	return OpcodeName(c.Opcode)
}

// Response is a decoded response notification: [OpResponse][REQUEST_OPCODE][STATUS].
type Response struct {
	// RequestOpcode is the opcode of the command being answered
	RequestOpcode byte

	// Status is the result (StatusSuccess on success)
	Status byte
}

// OK reports whether the response carries StatusSuccess.
func (r Response) OK() bool {
	return r.Status == StatusSuccess
}

// Receipt is a decoded packet receipt notification.
type Receipt struct {
	// BytesReceived is the number of image bytes the bootloader has received
	BytesReceived uint32

	// CRC is the running CRC32 of received bytes, valid only if HasCRC is set
	CRC uint32

	// HasCRC reports whether the bootloader included a CRC
	HasCRC bool
}

// Notification is a decoded control point notification. Exactly one of
// Response and Receipt is non-nil.
type Notification struct {
	Response *Response
	Receipt  *Receipt
}

// String describes the notification for logging.
func (n Notification) String() string {
	switch {
	case n.Response != nil:
		return fmt.Sprintf("response(%s, %s)", OpcodeName(n.Response.RequestOpcode), StatusName(n.Response.Status))
	case n.Receipt != nil:
		if n.Receipt.HasCRC {
			return fmt.Sprintf("receipt(%d bytes, crc=0x%08X)", n.Receipt.BytesReceived, n.Receipt.CRC)
		}
		return fmt.Sprintf("receipt(%d bytes)", n.Receipt.BytesReceived)
	default:
		return "empty"
	}
}
