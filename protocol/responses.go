package protocol

import (
	"encoding/binary"
	"fmt"
)

// ParseNotification decodes a control point notification.
//
// Response notification (ResponseSize bytes):
//
//	[0x10][REQUEST_OPCODE][STATUS]
//
// Packet receipt notification (ReceiptSize or ReceiptWithCRCSize bytes):
//
//	[0x11][BYTES_RECEIVED(4)] or [0x11][BYTES_RECEIVED(4)][CRC32(4)]
func ParseNotification(data []byte) (Notification, error) {
	if len(data) == 0 {
		return Notification{}, fmt.Errorf("empty notification")
	}

	switch data[0] {
	case OpResponse:
		resp, err := ParseResponse(data)
		if err != nil {
			return Notification{}, err
		}
		return Notification{Response: resp}, nil
	case OpPacketReceiptNotif:
		rcpt, err := ParseReceipt(data)
		if err != nil {
			return Notification{}, err
		}
		return Notification{Receipt: rcpt}, nil
	default:
		return Notification{}, fmt.Errorf("unknown notification opcode 0x%02X", data[0])
	}
}

// ParseResponse decodes a response notification.
func ParseResponse(data []byte) (*Response, error) {
	if len(data) != ResponseSize {
		return nil, fmt.Errorf("invalid response length: got %d bytes, expected %d", len(data), ResponseSize)
	}
	if data[0] != OpResponse {
		return nil, fmt.Errorf("invalid response opcode: got 0x%02X, expected 0x%02X", data[0], OpResponse)
	}

	return &Response{RequestOpcode: data[1], Status: data[2]}, nil
}

// ParseReceipt decodes a packet receipt notification, with or without CRC.
func ParseReceipt(data []byte) (*Receipt, error) {
	if len(data) != ReceiptSize && len(data) != ReceiptWithCRCSize {
		return nil, fmt.Errorf("invalid receipt length: got %d bytes, expected %d or %d",
			len(data), ReceiptSize, ReceiptWithCRCSize)
	}
	if data[0] != OpPacketReceiptNotif {
		return nil, fmt.Errorf("invalid receipt opcode: got 0x%02X, expected 0x%02X", data[0], OpPacketReceiptNotif)
	}

	rcpt := &Receipt{BytesReceived: binary.LittleEndian.Uint32(data[1:5])}
	if len(data) == ReceiptWithCRCSize {
		rcpt.CRC = binary.LittleEndian.Uint32(data[5:9])
		rcpt.HasCRC = true
	}

	return rcpt, nil
}

// EncodeResponse builds a response notification. Used by simulated peripherals.
func EncodeResponse(requestOpcode, status byte) []byte {
	return []byte{OpResponse, requestOpcode, status}
}

// EncodeReceipt builds a packet receipt notification. Used by simulated peripherals.
func EncodeReceipt(bytesReceived uint32) []byte {
	data := make([]byte, ReceiptSize)
	data[0] = OpPacketReceiptNotif
	binary.LittleEndian.PutUint32(data[1:5], bytesReceived)
	return data
}

// EncodeReceiptWithCRC builds a packet receipt notification carrying a CRC.
func EncodeReceiptWithCRC(bytesReceived, crc uint32) []byte {
	data := make([]byte, ReceiptWithCRCSize)
	data[0] = OpPacketReceiptNotif
	binary.LittleEndian.PutUint32(data[1:5], bytesReceived)
	binary.LittleEndian.PutUint32(data[5:9], crc)
	return data
}
