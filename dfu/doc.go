// Package dfu updates the firmware of Nordic nRF51 devices over a GATT link
// using the SDK 11 DFU protocol.
//
// # Overview
//
// A Session owns one connection to one device and walks it through the
// update:
//
//	Disconnected -> Connected -> ModeKnown [-> SwitchingMode -> ModeKnown]
//	  -> Handshaking -> TransferringInit -> TransferringImage
//	  -> Validating -> Activating -> Done
//
// Any failure ends in Failed; Err returns the reason. The connection is
// released exactly once on every path.
//
// # Variants
//
// How the running firmware is detected and how the application is rebooted
// into the bootloader depends on the device family:
//   - Legacy: START_DFU on the application's control point, same address
//   - Secure: buttonless characteristic, bootloader at address+1
//   - Ruuvitag: device ID on the UART service first, then Secure
//
// # Basic Usage
//
//	pkg, err := firmware.LoadArchive("app_dfu_package.zip")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sess := dfu.NewSession(transport, addr, dfu.Secure{},
//	    dfu.WithProgressCallback(func(p dfu.Progress) {
//	        fmt.Printf("[%s] %.1f%%\n", p.Phase, p.Percentage)
//	    }),
//	)
//	if err := sess.Run(context.Background(), pkg); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error Handling
//
// Errors wrap the sentinels of this package and can be tested with errors.Is:
//
//	switch {
//	case errors.Is(err, dfu.ErrTransportTimeout):
//	    // the peer went quiet; a fresh attempt may succeed
//	case errors.Is(err, dfu.ErrReceiptMismatch):
//	    var rm *dfu.ReceiptMismatchError
//	    errors.As(err, &rm)
//	    fmt.Printf("device has %d bytes, sent %d\n", rm.Reported, rm.Expected)
//	case errors.Is(err, dfu.ErrCharacteristicNotFound):
//	    // wrong variant for this device
//	}
//
// Bootloader rejections are *protocol.ResponseError values.
package dfu
