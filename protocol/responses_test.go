package protocol

import (
	"fmt"
	"strings"
	"testing"
)

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		wantResp    *Response
		wantReceipt *Receipt
		wantErr     bool
		errMsg      string
	}{
		{
			name:     "start dfu success",
			data:     []byte{0x10, 0x01, 0x01},
			wantResp: &Response{RequestOpcode: OpStartDFU, Status: StatusSuccess},
		},
		{
			name:     "validate crc error",
			data:     []byte{0x10, 0x04, 0x05},
			wantResp: &Response{RequestOpcode: OpValidateFirmwareImage, Status: StatusCRCError},
		},
		{
			name:        "receipt without crc",
			data:        []byte{0x11, 0xC8, 0x00, 0x00, 0x00},
			wantReceipt: &Receipt{BytesReceived: 200},
		},
		{
			name:        "receipt with crc",
			data:        []byte{0x11, 0x2D, 0x00, 0x00, 0x00, 0x26, 0x39, 0xF4, 0xCB},
			wantReceipt: &Receipt{BytesReceived: 45, CRC: 0xCBF43926, HasCRC: true},
		},
		{
			name:    "empty",
			data:    nil,
			wantErr: true,
			errMsg:  "empty notification",
		},
		{
			name:    "unknown opcode",
			data:    []byte{0x42, 0x00},
			wantErr: true,
			errMsg:  "unknown notification opcode 0x42",
		},
		{
			name:    "short response",
			data:    []byte{0x10, 0x01},
			wantErr: true,
			errMsg:  "invalid response length",
		},
		{
			name:    "short receipt",
			data:    []byte{0x11, 0x01, 0x02},
			wantErr: true,
			errMsg:  "invalid receipt length",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParseNotification(tt.data)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %v, want substring %q", err, tt.errMsg)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantResp != nil {
				if n.Response == nil {
					t.Fatalf("Response = nil, want %+v", *tt.wantResp)
				}
				if *n.Response != *tt.wantResp {
					t.Errorf("Response = %+v, want %+v", *n.Response, *tt.wantResp)
				}
				if n.Receipt != nil {
					t.Errorf("Receipt = %+v, want nil", *n.Receipt)
				}
			}

			if tt.wantReceipt != nil {
				if n.Receipt == nil {
					t.Fatalf("Receipt = nil, want %+v", *tt.wantReceipt)
				}
				if *n.Receipt != *tt.wantReceipt {
					t.Errorf("Receipt = %+v, want %+v", *n.Receipt, *tt.wantReceipt)
				}
			}
		})
	}
}

func TestEncodeReceiptParses(t *testing.T) {
	rcpt, err := ParseReceipt(EncodeReceipt(1234))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rcpt.BytesReceived != 1234 || rcpt.HasCRC {
		t.Errorf("Receipt = %+v, want 1234 bytes without CRC", *rcpt)
	}

	rcpt, err = ParseReceipt(EncodeReceiptWithCRC(45, 0xCBF43926))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rcpt.BytesReceived != 45 || !rcpt.HasCRC || rcpt.CRC != 0xCBF43926 {
		t.Errorf("Receipt = %+v, want 45 bytes with CRC 0xCBF43926", *rcpt)
	}

	resp, err := ParseResponse(EncodeResponse(OpValidateFirmwareImage, StatusSuccess))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK() || resp.RequestOpcode != OpValidateFirmwareImage {
		t.Errorf("Response = %+v, want validate success", *resp)
	}
}

func TestResponseError(t *testing.T) {
	err := &ResponseError{Operation: "validate", Status: StatusCRCError}

	want := "validate failed: CRC error (0x05)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	if !IsResponseError(fmt.Errorf("wrapped: %w", err)) {
		t.Error("IsResponseError should see through wrapping")
	}
	if IsResponseError(ErrEmptyImage) {
		t.Error("IsResponseError(ErrEmptyImage) = true")
	}
}

func TestStatusName(t *testing.T) {
	tests := []struct {
		code byte
		want string
	}{
		{StatusSuccess, "success"},
		{StatusInvalidState, "invalid state"},
		{StatusNotSupported, "not supported"},
		{StatusDataSizeExceedsLimit, "data size exceeds limit"},
		{StatusCRCError, "CRC error"},
		{StatusOperationFailed, "operation failed"},
		{0x99, "unknown status code 0x99"},
	}

	for _, tt := range tests {
		if got := StatusName(tt.code); got != tt.want {
			t.Errorf("StatusName(0x%02X) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestNotificationString(t *testing.T) {
	n := Notification{Response: &Response{RequestOpcode: OpStartDFU, Status: StatusSuccess}}
	if got := n.String(); got != "response(START_DFU, success)" {
		t.Errorf("String() = %q", got)
	}

	n = Notification{Receipt: &Receipt{BytesReceived: 200}}
	if got := n.String(); got != "receipt(200 bytes)" {
		t.Errorf("String() = %q", got)
	}
}
