// Package protocol implements the Nordic nRF51 legacy DFU control point protocol.
//
// This package builds control point commands and parses the notifications
// the bootloader sends back, according to the nRF51 SDK 11 DFU service.
//
// # Protocol Overview
//
// Commands are written to the control point characteristic:
//
//	[OPCODE][PARAMS...]
//
// Parameters are little-endian. The bootloader answers on the same
// characteristic with notifications:
//
//	Response: [0x10][REQUEST_OPCODE][STATUS]
//	Receipt:  [0x11][BYTES_RECEIVED(4)]
//
// Image and init packet bytes are written to the packet characteristic in
// slices of at most DefaultPacketSize bytes.
//
// # Command Builders
//
//	frame := protocol.Encode(protocol.PacketReceiptNotifRequest(10)) // 08 0A 00
//	frame := protocol.Encode(protocol.StartDFU(protocol.ImageTypeApplication))
//
// # Notification Parsing
//
//	n, err := protocol.ParseNotification(value)
//	if n.Response != nil && !n.Response.OK() {
//	    return &protocol.ResponseError{Operation: "validate", Status: n.Response.Status}
//	}
//
// # Chunking and CRC
//
//	chunks, err := protocol.Chunk(image, protocol.DefaultPacketSize)
//	crc := protocol.CRC32(image)
package protocol
