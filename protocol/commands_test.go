package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want []byte
	}{
		{
			name: "start dfu application",
			cmd:  StartDFU(ImageTypeApplication),
			want: []byte{0x01, 0x04},
		},
		{
			name: "init receive",
			cmd:  InitDFUParams(InitReceive),
			want: []byte{0x02, 0x00},
		},
		{
			name: "init complete",
			cmd:  InitDFUParams(InitComplete),
			want: []byte{0x02, 0x01},
		},
		{
			name: "receive firmware image",
			cmd:  ReceiveFirmwareImage(),
			want: []byte{0x03},
		},
		{
			name: "validate",
			cmd:  ValidateFirmwareImage(),
			want: []byte{0x04},
		},
		{
			name: "activate and reset",
			cmd:  ActivateAndReset(),
			want: []byte{0x05},
		},
		{
			name: "system reset",
			cmd:  SystemReset(),
			want: []byte{0x06},
		},
		{
			name: "report received image size",
			cmd:  ReportReceivedImageSize(),
			want: []byte{0x07},
		},
		{
			name: "receipt interval 10",
			cmd:  PacketReceiptNotifRequest(10),
			want: []byte{0x08, 0x0A, 0x00},
		},
		{
			name: "receipt interval low byte first",
			cmd:  PacketReceiptNotifRequest(0x1234),
			want: []byte{0x08, 0x34, 0x12},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.cmd)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode(%s) = % X, want % X", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestEncodeDoesNotAliasParams(t *testing.T) {
	cmd := PacketReceiptNotifRequest(10)
	frame := Encode(cmd)
	frame[1] = 0xFF

	if cmd.Params[0] != 0x0A {
		t.Errorf("Encode modified command params: got 0x%02X", cmd.Params[0])
	}
}

func TestImageSizeBlock(t *testing.T) {
	block := ImageSizeBlock(0x01020304, 0, 0xAABBCCDD)

	want := []byte{
		0x04, 0x03, 0x02, 0x01,
		0x00, 0x00, 0x00, 0x00,
		0xDD, 0xCC, 0xBB, 0xAA,
	}
	if !bytes.Equal(block, want) {
		t.Errorf("ImageSizeBlock = % X, want % X", block, want)
	}
}

func TestApplicationSizeBlock(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		want    []byte
		wantErr error
	}{
		{
			name: "45 bytes",
			size: 45,
			want: []byte{0, 0, 0, 0, 0, 0, 0, 0, 45, 0, 0, 0},
		},
		{
			name:    "zero",
			size:    0,
			wantErr: ErrEmptyImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplicationSizeBlock(tt.size)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("ApplicationSizeBlock = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestCommandString(t *testing.T) {
	if got := StartDFU(ImageTypeApplication).String(); got != "START_DFU" {
		t.Errorf("String() = %q, want START_DFU", got)
	}
	if got := (Command{Opcode: 0x7E}).String(); got != "opcode 0x7E" {
		t.Errorf("String() = %q, want opcode 0x7E", got)
	}
}
