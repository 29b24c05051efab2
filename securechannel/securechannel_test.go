package securechannel

import (
	"bytes"
	"testing"

	"keycard/kcrypto"
	"keycard/transport"
)

func freshChannel(t *testing.T) (*Channel, []byte, []byte, []byte) {
	t.Helper()
	encKey, err := kcrypto.RandomBytes(kcrypto.KeySize)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	macKey, err := kcrypto.RandomBytes(kcrypto.KeySize)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	iv, err := kcrypto.RandomBytes(kcrypto.IVSize)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	c := New()
	if err := c.Open(0x01, encKey, macKey, iv); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return c, encKey, macKey, iv
}

// simulateCardResponse builds a secure-response body the way the applet
// would, given the channel's IV in effect right after a request (which
// is what the client will use to decrypt the response), independent of
// the Channel type's own encode/decode implementation.
func simulateCardResponse(t *testing.T, encKey, macKey, ivAfterRequest, data []byte, innerSW uint16) []byte {
	t.Helper()
	plain := append(append([]byte{}, data...), byte(innerSW>>8), byte(innerSW))
	cipher, err := kcrypto.EncryptCBC(encKey, ivAfterRequest, plain)
	if err != nil {
		t.Fatalf("EncryptCBC: %v", err)
	}
	lr := kcrypto.IVSize + len(cipher)
	macInput := make([]byte, 0, 1+15+len(cipher))
	macInput = append(macInput, byte(lr))
	macInput = append(macInput, make([]byte, 15)...)
	macInput = append(macInput, cipher...)
	mac, err := kcrypto.MAC(macKey, macInput, false)
	if err != nil {
		t.Fatalf("MAC: %v", err)
	}
	body := append(append([]byte{}, mac...), cipher...)
	return append(body, 0x90, 0x00)
}

func TestChannelEncodeDecodeRoundTrip(t *testing.T) {
	c, encKey, macKey, _ := freshChannel(t)

	reqData := []byte("verify pin body")
	reqBody, err := c.encode(0x80, 0x20, 0x00, 0x00, reqData)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(reqBody) < kcrypto.IVSize {
		t.Fatalf("request body too short: %d", len(reqBody))
	}
	ivAfterRequest := append([]byte(nil), c.iv...)

	respData := []byte("response payload")
	respBody := simulateCardResponse(t, encKey, macKey, ivAfterRequest, respData, 0x9000)

	result, err := c.decode(respBody[:len(respBody)-2])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.SW != 0x9000 {
		t.Errorf("inner SW = %04X, want 9000", result.SW)
	}
	if !bytes.Equal(result.Data, respData) {
		t.Errorf("decoded data = %q, want %q", result.Data, respData)
	}
	if !c.IsOpen() {
		t.Errorf("channel should remain open after a valid exchange")
	}
}

func TestSendSecureEndToEnd(t *testing.T) {
	c, encKey, macKey, _ := freshChannel(t)
	mock := transport.NewMock()
	_ = mock.Connect("Mock Reader 00")

	// Pre-compute what the client will send so we can build a response
	// around the IV it will be in after the request — without mutating
	// the channel under test, using a disposable clone.
	clone := &Channel{
		open: true, encKey: append([]byte(nil), encKey...),
		macKey: append([]byte(nil), macKey...), iv: append([]byte(nil), c.iv...),
	}
	reqData := []byte("secure payload")
	if _, err := clone.encode(0x80, 0xC0, 0x00, 0x00, reqData); err != nil {
		t.Fatalf("clone encode: %v", err)
	}
	respData := []byte("signed result")
	respBody := simulateCardResponse(t, encKey, macKey, clone.iv, respData, 0x9000)
	mock.Push(respBody)

	result, err := c.SendSecure(mock, 0x80, 0xC0, 0x00, 0x00, reqData)
	if err != nil {
		t.Fatalf("SendSecure: %v", err)
	}
	if !result.IsOK() {
		t.Fatalf("result not OK: %04X", result.SW)
	}
	if !bytes.Equal(result.Data, respData) {
		t.Errorf("data = %q, want %q", result.Data, respData)
	}
	if !bytes.Equal(c.iv, clone.iv) {
		t.Errorf("client IV %X should match simulator IV %X after exchange", c.iv, clone.iv)
	}
}

func TestSendSecureClosesChannelOnBadMac(t *testing.T) {
	c, _, _, _ := freshChannel(t)
	mock := transport.NewMock()
	_ = mock.Connect("r")

	// A syntactically valid but cryptographically wrong response: 16
	// bytes of garbage MAC plus one ciphertext block.
	garbage := bytes.Repeat([]byte{0xAB}, kcrypto.IVSize+kcrypto.IVSize)
	mock.Push(append(garbage, 0x90, 0x00))

	_, err := c.SendSecure(mock, 0x80, 0x20, 0x00, 0x00, []byte("1234"))
	if err == nil {
		t.Fatal("expected MAC verification failure")
	}
	if c.IsOpen() {
		t.Errorf("channel must close after MAC verification failure")
	}
}

func TestSendSecureClosesChannelOnRawSWFailure(t *testing.T) {
	c, _, _, _ := freshChannel(t)
	mock := transport.NewMock()
	_ = mock.Connect("r")
	mock.PushSW(0x6982)

	result, err := c.SendSecure(mock, 0x80, 0x20, 0x00, 0x00, []byte("1234"))
	if err != nil {
		t.Fatalf("expected no transport-level error, got %v", err)
	}
	if result.SW != 0x6982 {
		t.Errorf("SW = %04X, want 6982", result.SW)
	}
	if c.IsOpen() {
		t.Errorf("channel must close on non-9000 raw SW")
	}
}

func TestSendSecureClosesChannelOnTransportError(t *testing.T) {
	c, _, _, _ := freshChannel(t)
	mock := transport.NewMock()
	// Not connected: Transmit returns ErrNotConnected.
	_, err := c.SendSecure(mock, 0x80, 0x20, 0x00, 0x00, []byte("1234"))
	if err == nil {
		t.Fatal("expected transport error")
	}
	if c.IsOpen() {
		t.Errorf("channel must close on transport error")
	}
}

func TestSendSecureRejectsWhenNotOpen(t *testing.T) {
	c := New()
	mock := transport.NewMock()
	_ = mock.Connect("r")
	if _, err := c.SendSecure(mock, 0x80, 0x20, 0x00, 0x00, nil); err != ErrNotOpen {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}

func TestCloseIsIdempotentAndZeroes(t *testing.T) {
	c, _, _, _ := freshChannel(t)
	c.Close()
	if c.IsOpen() {
		t.Fatal("expected closed")
	}
	c.Close() // must not panic
}
