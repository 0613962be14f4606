package protocol

// ProtocolVersion is the Nordic nRF51 SDK release whose legacy DFU protocol is implemented.
const ProtocolVersion = "11.0"

// Control point opcodes per nRF51 SDK 11 DFU service.
const (
	// OpStartDFU starts an update; parameter is the image type
	OpStartDFU = 0x01

	// OpInitDFUParams brackets the init packet; parameter is InitReceive or InitComplete
	OpInitDFUParams = 0x02

	// OpReceiveFirmwareImage tells the bootloader that image data follows
	OpReceiveFirmwareImage = 0x03

	// OpValidateFirmwareImage asks the bootloader to validate the received image
	OpValidateFirmwareImage = 0x04

	// OpActivateAndReset activates the new image and resets the device
	OpActivateAndReset = 0x05

	// OpSystemReset resets the device without activating
	OpSystemReset = 0x06

	// OpReportReceivedImageSize asks for the number of bytes received so far
	OpReportReceivedImageSize = 0x07

	// OpPacketReceiptNotifRequest sets the packet receipt notification interval
	OpPacketReceiptNotifRequest = 0x08

	// OpResponse prefixes every response notification
	OpResponse = 0x10

	// OpPacketReceiptNotif prefixes every packet receipt notification
	OpPacketReceiptNotif = 0x11
)

// INIT_DFU_PARAMS parameter values.
const (
	// InitReceive announces that init packet bytes follow on the packet characteristic
	InitReceive = 0x00

	// InitComplete marks the end of the init packet
	InitComplete = 0x01
)

// Image types carried by START_DFU.
const (
	ImageTypeSoftDevice  = 0x01
	ImageTypeBootloader  = 0x02
	ImageTypeApplication = 0x04
)

// Response status codes per nRF51 SDK 11.
const (
	// StatusSuccess indicates the request completed
	StatusSuccess = 0x01

	// StatusInvalidState indicates the request is not valid in the current state
	StatusInvalidState = 0x02

	// StatusNotSupported indicates the opcode is not supported
	StatusNotSupported = 0x03

	// StatusDataSizeExceedsLimit indicates the image is too large
	StatusDataSizeExceedsLimit = 0x04

	// StatusCRCError indicates the image failed CRC validation
	StatusCRCError = 0x05

	// StatusOperationFailed indicates a generic failure
	StatusOperationFailed = 0x06
)

// Transfer sizing.
const (
	// DefaultPacketSize is the largest write-without-response payload at the default ATT MTU (23 - 3)
	DefaultPacketSize = 20

	// DefaultReceiptInterval is the number of packets between receipt notifications
	DefaultReceiptInterval = 10

	// ImageSizeBlockSize is the size of the START_DFU image size block
	ImageSizeBlockSize = 12

	// ResponseSize is the size of a response notification
	ResponseSize = 3

	// ReceiptSize is the size of a packet receipt notification without CRC
	ReceiptSize = 5

	// ReceiptWithCRCSize is the size of a packet receipt notification carrying a CRC
	ReceiptWithCRCSize = 9
)
