package protocol

import (
	"encoding/binary"
	"fmt"
)

// Encode serializes a command: [OPCODE][PARAMS...].
func Encode(cmd Command) []byte {
	frame := make([]byte, 0, 1+len(cmd.Params))
	frame = append(frame, cmd.Opcode)
	frame = append(frame, cmd.Params...)
	return frame
}

// StartDFU builds START_DFU for the given image type.
//
// Frame structure:
//
//	[0x01][IMAGE_TYPE]
func StartDFU(imageType byte) Command {
	return Command{Opcode: OpStartDFU, Params: []byte{imageType}}
}

// InitDFUParams builds INIT_DFU_PARAMS with InitReceive or InitComplete.
//
// Frame structure:
//
//	[0x02][PHASE]
func InitDFUParams(phase byte) Command {
	return Command{Opcode: OpInitDFUParams, Params: []byte{phase}}
}

// ReceiveFirmwareImage builds RECEIVE_FIRMWARE_IMAGE.
func ReceiveFirmwareImage() Command {
	return Command{Opcode: OpReceiveFirmwareImage}
}

// ValidateFirmwareImage builds VALIDATE_FIRMWARE_IMAGE.
func ValidateFirmwareImage() Command {
	return Command{Opcode: OpValidateFirmwareImage}
}

// ActivateAndReset builds ACTIVATE_AND_RESET.
func ActivateAndReset() Command {
	return Command{Opcode: OpActivateAndReset}
}

// SystemReset builds SYSTEM_RESET.
func SystemReset() Command {
	return Command{Opcode: OpSystemReset}
}

// ReportReceivedImageSize builds REPORT_RECEIVED_IMAGE_SIZE.
func ReportReceivedImageSize() Command {
	return Command{Opcode: OpReportReceivedImageSize}
}

// PacketReceiptNotifRequest builds the packet receipt notification request.
// The interval is encoded as uint16 little-endian; zero disables receipts.
//
// Frame structure:
//
//	[0x08][INTERVAL_L][INTERVAL_H]
func PacketReceiptNotifRequest(interval uint16) Command {
	params := make([]byte, 2)
	binary.LittleEndian.PutUint16(params, interval)
	return Command{Opcode: OpPacketReceiptNotifRequest, Params: params}
}

// ImageSizeBlock builds the 12-byte size block sent on the packet
// characteristic after START_DFU.
//
// Block structure (uint32 little-endian each):
//
//	[SOFTDEVICE_SIZE][BOOTLOADER_SIZE][APPLICATION_SIZE]
func ImageSizeBlock(softDevice, bootloader, application uint32) []byte {
	block := make([]byte, ImageSizeBlockSize)
	binary.LittleEndian.PutUint32(block[0:4], softDevice)
	binary.LittleEndian.PutUint32(block[4:8], bootloader)
	binary.LittleEndian.PutUint32(block[8:12], application)
	return block
}

// ApplicationSizeBlock builds the size block for an application-only update.
func ApplicationSizeBlock(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrEmptyImage
	}
	if uint64(size) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("image size %d exceeds 32-bit limit", size)
	}
	return ImageSizeBlock(0, 0, uint32(size)), nil
}
