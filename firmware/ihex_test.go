package firmware

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/moffa90/go-nrfdfu/protocol"
)

func TestParseHexReader(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
		errMsg  string
	}{
		{
			name:  "single data record",
			input: ":0400000001020304F2\n:00000001FF\n",
			want:  []byte{0x01, 0x02, 0x03, 0x04},
		},
		{
			name:  "gap is padded with 0xFF",
			input: ":0400000001020304F2\n:02000800AABB91\n:00000001FF\n",
			want:  []byte{0x01, 0x02, 0x03, 0x04, 0xFF, 0xFF, 0xFF, 0xFF, 0xAA, 0xBB},
		},
		{
			name:  "records out of order",
			input: ":02000800AABB91\n:0400000001020304F2\n:00000001FF\n",
			want:  []byte{0x01, 0x02, 0x03, 0x04, 0xFF, 0xFF, 0xFF, 0xFF, 0xAA, 0xBB},
		},
		{
			name:  "extended linear address",
			input: ":020000040001F9\n:0400000001020304F2\n:00000001FF\n",
			want:  []byte{0x01, 0x02, 0x03, 0x04},
		},
		{
			name:  "extended segment address",
			input: ":020000021000EC\n:0400000001020304F2\n:00000001FF\n",
			want:  []byte{0x01, 0x02, 0x03, 0x04},
		},
		{
			name:  "start address records ignored",
			input: ":0400000001020304F2\n:0400000508000000EF\n:00000001FF\n",
			want:  []byte{0x01, 0x02, 0x03, 0x04},
		},
		{
			name:  "blank lines and CRLF",
			input: "\r\n:0400000001020304F2\r\n\r\n:00000001FF\r\n",
			want:  []byte{0x01, 0x02, 0x03, 0x04},
		},
		{
			name:    "missing colon",
			input:   "0400000001020304F2\n",
			wantErr: true,
			errMsg:  "must start with ':'",
		},
		{
			name:    "bad checksum",
			input:   ":0400000001020304F3\n",
			wantErr: true,
			errMsg:  "checksum mismatch",
		},
		{
			name:    "count disagrees with data",
			input:   ":0500000001020304F1\n",
			wantErr: true,
			errMsg:  "data length mismatch",
		},
		{
			name:    "record too short",
			input:   ":0000\n",
			wantErr: true,
			errMsg:  "record too short",
		},
		{
			name:    "invalid hex characters",
			input:   ":04000000010203ZZF2\n",
			wantErr: true,
			errMsg:  "invalid hex data",
		},
		{
			name:    "unknown record type",
			input:   ":00000006FA\n",
			wantErr: true,
			errMsg:  "unknown record type",
		},
		{
			name:    "overlapping records",
			input:   ":0400000001020304F2\n:0200010055AAFE\n",
			wantErr: true,
			errMsg:  "overlapping",
		},
		{
			name:    "data after end of file",
			input:   ":00000001FF\n:0400000001020304F2\n",
			wantErr: true,
			errMsg:  "after end-of-file",
		},
		{
			name:    "no data records",
			input:   ":00000001FF\n",
			wantErr: true,
			errMsg:  "no data records",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHexReader(strings.NewReader(tt.input))

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %q, want substring %q", err.Error(), tt.errMsg)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("image = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestHexRecordErrorLine(t *testing.T) {
	_, err := ParseHexReader(strings.NewReader(":0400000001020304F2\n:0400000001020304F3\n"))

	var recErr *HexRecordError
	if !errors.As(err, &recErr) {
		t.Fatalf("error = %v, want *HexRecordError", err)
	}
	if recErr.Line != 2 {
		t.Errorf("Line = %d, want 2", recErr.Line)
	}
}

func TestCalculateRecordChecksum(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{name: "data record", data: []byte{0x04, 0x00, 0x00, 0x00, 0x01, 0x02, 0x03, 0x04}, want: 0xF2},
		{name: "end of file", data: []byte{0x00, 0x00, 0x00, 0x01}, want: 0xFF},
		{name: "zero sum", data: []byte{0x80, 0x80}, want: 0x00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculateRecordChecksum(tt.data); got != tt.want {
				t.Errorf("checksum = 0x%02X, want 0x%02X", got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		t.Helper()
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, data, 0o600); err != nil {
			t.Fatal(err)
		}
		return p
	}

	binPath := write("app.bin", []byte{0xDE, 0xAD, 0xBE, 0xEF})
	hexPath := write("app.hex", []byte(":0400000001020304F2\n:00000001FF\n"))
	datPath := write("app.dat", []byte{0x01, 0x02})
	emptyDat := write("empty.dat", nil)
	txtPath := write("app.txt", []byte("nope"))

	t.Run("bin image", func(t *testing.T) {
		pkg, err := Load(binPath, datPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pkg.Size() != 4 {
			t.Errorf("Size() = %d, want 4", pkg.Size())
		}
		if pkg.CRC32() != protocol.CRC32([]byte{0xDE, 0xAD, 0xBE, 0xEF}) {
			t.Error("CRC32 does not match the image")
		}
		if !bytes.Equal(pkg.InitPacket, []byte{0x01, 0x02}) {
			t.Errorf("InitPacket = % X", pkg.InitPacket)
		}
	})

	t.Run("hex image", func(t *testing.T) {
		pkg, err := Load(hexPath, datPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(pkg.Image, []byte{0x01, 0x02, 0x03, 0x04}) {
			t.Errorf("Image = % X", pkg.Image)
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		if _, err := Load(txtPath, datPath); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("error = %v, want ErrUnsupportedFormat", err)
		}
	})

	t.Run("empty init packet", func(t *testing.T) {
		if _, err := Load(binPath, emptyDat); !errors.Is(err, protocol.ErrEmptyImage) {
			t.Errorf("error = %v, want ErrEmptyImage", err)
		}
	})

	t.Run("missing init packet", func(t *testing.T) {
		if _, err := Load(binPath, filepath.Join(dir, "missing.dat")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("error = %v, want os.ErrNotExist", err)
		}
	})
}
