// Package firmware loads nRF51 firmware images and init packets.
//
// # Image Formats
//
// Images are read by extension:
//   - .bin: raw binary, used verbatim
//   - .hex: Intel HEX, linearized into a flat byte array
//
// Intel HEX record format (one per line):
//
//	:[COUNT(2)][ADDRESS(4)][TYPE(2)][DATA(2*COUNT)][CHECKSUM(2)]
//
// Example record:
//
//	:0400000001020304F2
//	  04 = Byte count
//	  0000 = Address (big-endian)
//	  00 = Record type (data)
//	  01020304 = Data
//	  F2 = Checksum (2's complement of the byte sum)
//
// Extended segment (02) and extended linear (04) address records move the
// base address. The image starts at the lowest data address; gaps between
// records are filled with 0xFF.
//
// # DFU Packages
//
// A Nordic DFU zip bundles the image with its init packet (.dat). Unpack
// extracts the two files into a scratch directory that Close removes:
//
//	arc, err := firmware.Unpack("app_dfu_package.zip")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer arc.Close()
//
//	pkg, err := arc.Load()
//
// LoadArchive does all three steps at once.
package firmware
