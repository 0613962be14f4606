package firmware

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Constants for Intel HEX parsing.
const (
	// MinimumRecordLength is the minimum record length in hex characters after ':'
	// (count + address + type + checksum)
	MinimumRecordLength = 10

	// RecordHeaderSize is the size of count + address + type in bytes
	RecordHeaderSize = 4

	// PadByte fills gaps between data records (erased flash value)
	PadByte = 0xFF

	// MaxImageSize bounds the linearized image. nRF51 parts have at most 256 KiB of flash.
	MaxImageSize = 1 << 20
)

// Intel HEX record types.
const (
	RecordData                   = 0x00
	RecordEndOfFile              = 0x01
	RecordExtendedSegmentAddress = 0x02
	RecordStartSegmentAddress    = 0x03
	RecordExtendedLinearAddress  = 0x04
	RecordStartLinearAddress     = 0x05
)

// HexRecordError reports a malformed record.
type HexRecordError struct {
	Line   int
	Reason string
}

func (e *HexRecordError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// segment is a contiguous run of data starting at an absolute address.
type segment struct {
	addr uint32
	data []byte
}

// ParseHex reads an Intel HEX file from the given path and returns the
// linearized image.
//
// Example:
//
//	image, err := firmware.ParseHex("application.hex")
func ParseHex(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseHexReader(f)
}

// ParseHexReader reads Intel HEX records from any io.Reader and linearizes
// them into a flat image starting at the lowest data address. Gaps are
// filled with PadByte.
//
// Example:
//
//	data := strings.NewReader(":0400000001020304F2\n:00000001FF\n")
//	image, err := firmware.ParseHexReader(data)
func ParseHexReader(r io.Reader) ([]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)

	var (
		segments []segment
		base     uint32
		lineNum  int
		sawEOF   bool
	)

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines
		if line == "" {
			continue
		}

		if sawEOF {
			return nil, &HexRecordError{Line: lineNum, Reason: "data after end-of-file record"}
		}

		recType, addr, data, err := parseRecord(line)
		if err != nil {
			return nil, &HexRecordError{Line: lineNum, Reason: err.Error()}
		}

		switch recType {
		case RecordData:
			if len(data) > 0 {
				segments = append(segments, segment{addr: base + uint32(addr), data: data})
			}
		case RecordEndOfFile:
			sawEOF = true
		case RecordExtendedSegmentAddress:
			if len(data) != 2 {
				return nil, &HexRecordError{Line: lineNum, Reason: "extended segment address must carry 2 bytes"}
			}
			base = (uint32(data[0])<<8 | uint32(data[1])) << 4
		case RecordExtendedLinearAddress:
			if len(data) != 2 {
				return nil, &HexRecordError{Line: lineNum, Reason: "extended linear address must carry 2 bytes"}
			}
			base = (uint32(data[0])<<8 | uint32(data[1])) << 16
		case RecordStartSegmentAddress, RecordStartLinearAddress:
			// Entry point only; not part of the image.
		default:
			return nil, &HexRecordError{Line: lineNum, Reason: fmt.Sprintf("unknown record type 0x%02X", recType)}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if len(segments) == 0 {
		return nil, errors.New("no data records found in file")
	}

	return linearize(segments)
}

// parseRecord decodes one record line.
//
// Record format (hex characters after ':'):
//
//	[COUNT(2)][ADDRESS(4)][TYPE(2)][DATA(2*COUNT)][CHECKSUM(2)]
//
// ADDRESS is big-endian. CHECKSUM is the two's complement of the sum of all
// preceding bytes.
func parseRecord(line string) (recType byte, addr uint16, data []byte, err error) {
	if line[0] != ':' {
		return 0, 0, nil, errors.New("record must start with ':'")
	}
	line = line[1:]

	if len(line) < MinimumRecordLength {
		return 0, 0, nil, fmt.Errorf("record too short: got %d characters, minimum is %d", len(line), MinimumRecordLength)
	}

	raw, err := hex.DecodeString(line)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("invalid hex data: %w", err)
	}

	count := int(raw[0])
	expectedLen := RecordHeaderSize + count + 1
	if len(raw) != expectedLen {
		return 0, 0, nil, fmt.Errorf("data length mismatch: got %d bytes, expected %d (header=%d + data=%d + checksum=1)",
			len(raw), expectedLen, RecordHeaderSize, count)
	}

	var sum byte
	for _, b := range raw {
		sum += b
	}
	if sum != 0 {
		return 0, 0, nil, fmt.Errorf("checksum mismatch: got 0x%02X, expected 0x%02X",
			raw[len(raw)-1], calculateRecordChecksum(raw[:len(raw)-1]))
	}

	addr = uint16(raw[1])<<8 | uint16(raw[2])
	recType = raw[3]
	data = make([]byte, count)
	copy(data, raw[RecordHeaderSize:RecordHeaderSize+count])

	return recType, addr, data, nil
}

// linearize orders segments by address and copies them into one image.
func linearize(segments []segment) ([]byte, error) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].addr < segments[j].addr
	})

	start := uint64(segments[0].addr)
	var end uint64
	for i, s := range segments {
		segEnd := uint64(s.addr) + uint64(len(s.data))
		if i > 0 && uint64(s.addr) < end {
			return nil, fmt.Errorf("overlapping data at address 0x%08X", s.addr)
		}
		if segEnd > end {
			end = segEnd
		}
	}

	if end-start > MaxImageSize {
		return nil, fmt.Errorf("image spans 0x%08X-0x%08X (%d bytes), exceeds %d bytes", start, end, end-start, MaxImageSize)
	}

	image := make([]byte, end-start)
	for i := range image {
		image[i] = PadByte
	}
	for _, s := range segments {
		copy(image[uint64(s.addr)-start:], s.data)
	}

	return image, nil
}

// calculateRecordChecksum computes the checksum byte for a record.
// Uses basic summation with 2's complement.
func calculateRecordChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum + 1 // 2's complement
}
