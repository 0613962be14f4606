// Package gatt defines the GATT client capability used by the DFU engine.
//
// The engine never talks to a Bluetooth stack directly. It drives a Transport:
// resolve characteristics by UUID, write with or without response, enable
// notifications, and block for the next notification with a deadline.
//
// # Implementations
//
//   - gatt/goble: a real transport over github.com/go-ble/ble (Linux HCI, macOS)
//   - gatt/gatttest: an in-memory nRF51 peripheral for tests and demos
//
// # Addresses
//
// Address is a 48-bit device address with arithmetic. Secure bootloaders
// advertise on the application address plus one:
//
//	app := gatt.MustParseAddress("CD:E3:4A:47:1C:E4")
//	dfu := app.Add(1) // CD:E3:4A:47:1C:E5
package gatt
