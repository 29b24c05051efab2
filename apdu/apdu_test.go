package apdu

import (
	"bytes"
	"testing"
)

func TestCommandBytes(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want []byte
	}{
		{"no data", NewCommand(0x00, 0xA4, 0x04, 0x00, nil), []byte{0x00, 0xA4, 0x04, 0x00}},
		{
			"select AID",
			NewCommand(0x00, 0xA4, 0x04, 0x00, []byte{0xA0, 0x00, 0x00, 0x08, 0x04, 0x00, 0x01, 0x01}),
			[]byte{0x00, 0xA4, 0x04, 0x00, 0x08, 0xA0, 0x00, 0x00, 0x08, 0x04, 0x00, 0x01, 0x01},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.cmd.Bytes()
			if err != nil {
				t.Fatalf("Bytes() error = %v", err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Errorf("Bytes() = % X, want % X", got, tc.want)
			}
		})
	}
}

func TestCommandBytesRejectsOverlongData(t *testing.T) {
	cmd := NewCommand(0x80, 0x10, 0x00, 0x00, make([]byte, 256))
	if _, err := cmd.Bytes(); err == nil {
		t.Fatal("expected error for 256-byte data field")
	}
}

func TestParseResponse(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03, 0x90, 0x00}
	resp, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse error = %v", err)
	}
	if !bytes.Equal(resp.Data, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("Data = % X", resp.Data)
	}
	if resp.SW != SWSuccess {
		t.Errorf("SW = %04X, want %04X", resp.SW, SWSuccess)
	}
	if !resp.IsOK() {
		t.Errorf("IsOK() = false, want true")
	}
}

func TestParseResponseTooShort(t *testing.T) {
	if _, err := ParseResponse([]byte{0x90}); err == nil {
		t.Fatal("expected error for 1-byte response")
	}
	if _, err := ParseResponse(nil); err == nil {
		t.Fatal("expected error for empty response")
	}
}

func TestIsVerifyFailure(t *testing.T) {
	tests := []struct {
		sw          uint16
		wantOK      bool
		wantRetries int
	}{
		{0x63C0, true, 0},
		{0x63C1, true, 1},
		{0x63CF, true, 15},
		{0x9000, false, 0},
		{0x6A86, false, 0},
	}
	for _, tc := range tests {
		retries, ok := IsVerifyFailure(tc.sw)
		if ok != tc.wantOK || retries != tc.wantRetries {
			t.Errorf("IsVerifyFailure(%04X) = (%d, %v), want (%d, %v)", tc.sw, retries, ok, tc.wantRetries, tc.wantOK)
		}
	}
}
