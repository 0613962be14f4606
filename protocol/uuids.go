package protocol

import "github.com/google/uuid"

// Characteristic UUIDs of the Nordic DFU services and the Nordic UART
// Service used to tell application firmware from the bootloader.
var (
	// LegacyControlPointUUID is the SDK 11 DFU control point
	LegacyControlPointUUID = uuid.MustParse("00001531-1212-efde-1523-785feabcd123")

	// LegacyPacketUUID is the SDK 11 DFU packet characteristic
	LegacyPacketUUID = uuid.MustParse("00001532-1212-efde-1523-785feabcd123")

	// SecureControlPointUUID is the secure DFU control point
	SecureControlPointUUID = uuid.MustParse("8ec90001-f315-4f60-9fb8-838830daea50")

	// SecurePacketUUID is the secure DFU packet characteristic
	SecurePacketUUID = uuid.MustParse("8ec90002-f315-4f60-9fb8-838830daea50")

	// ButtonlessUUID is the buttonless DFU characteristic exposed by application firmware
	ButtonlessUUID = uuid.MustParse("8ec90003-f315-4f60-9fb8-838830daea50")

	// UARTRXUUID is the Nordic UART Service RX characteristic (central writes)
	UARTRXUUID = uuid.MustParse("6e400002-b5a3-f393-e0a9-e50e24dcca9e")

	// UARTTXUUID is the Nordic UART Service TX characteristic (peripheral notifies)
	UARTTXUUID = uuid.MustParse("6e400003-b5a3-f393-e0a9-e50e24dcca9e")
)

// Mode-switch payloads.
const (
	// ButtonlessEnterBootloader is written to the buttonless characteristic to reboot into DFU
	ButtonlessEnterBootloader = 0x01

	// ButtonlessResponse prefixes the buttonless indication: [0x20][REQUEST][STATUS]
	ButtonlessResponse = 0x20

	// RuuvitagIDSize is the length of a Ruuvitag device identifier
	RuuvitagIDSize = 8
)

// RuuvitagIDTag prefixes the device identifier written to the UART RX characteristic.
var RuuvitagIDTag = []byte{0x2A, 0x2A, 0x09}
