package pairing

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"keycard/apdu"
	"keycard/kcrypto"
	"keycard/transport"
)

// cardPair simulates the applet side of the two-step exchange for a
// given shared secret, so tests can script correct responses without
// duplicating this package's own verification logic.
type cardPair struct {
	sharedSecret    []byte
	clientChallenge []byte
	cardChallenge   []byte
	index           byte
	salt            []byte
}

func (c *cardPair) step1Response() []byte {
	cryptogram := sha256.Sum256(append(append([]byte{}, c.sharedSecret...), c.clientChallenge...))
	body := append(append([]byte{}, cryptogram[:]...), c.cardChallenge...)
	return append(body, 0x90, 0x00)
}

func (c *cardPair) step2Response() []byte {
	body := append([]byte{c.index}, c.salt...)
	return append(body, 0x90, 0x00)
}

func TestPairSuccess(t *testing.T) {
	sharedSecret := kcrypto.DerivePairingSecret("KeycardTest")
	cardChallenge, err := kcrypto.RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	salt, err := kcrypto.RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}

	mock := transport.NewMock()
	_ = mock.Connect("r")

	// We don't know the client challenge pairing.Pair will draw, so
	// script by matching on P1 rather than the exact body: step 1 uses
	// P1=0x00, step 2 uses P1=0x01. The mock's exact-match scripting
	// needs the whole APDU, so instead a wrapping Transport computes the
	// card's responses only after seeing what was sent.
	fake := &recordingTransport{inner: mock, shared: sharedSecret, cardChallenge: cardChallenge, index: 7, salt: salt}

	rec, err := Pair(fake, "KeycardTest")
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if rec.Index != 7 {
		t.Errorf("Index = %d, want 7", rec.Index)
	}
	wantKey := sha256.Sum256(append(append([]byte{}, sharedSecret...), salt...))
	if !bytes.Equal(rec.Key[:], wantKey[:]) {
		t.Errorf("pairing key mismatch")
	}
	if !bytes.Equal(rec.Salt[:], salt) {
		t.Errorf("salt mismatch")
	}
}

// recordingTransport wraps a transport.Transport and synthesizes correct
// step1/step2 responses from the APDU it's asked to send, since the
// client challenge is generated internally by Pair and not observable
// beforehand.
type recordingTransport struct {
	inner         transport.Transport
	shared        []byte
	cardChallenge []byte
	index         byte
	salt          []byte
}

func (r *recordingTransport) ListReaders() ([]string, error) { return r.inner.ListReaders() }
func (r *recordingTransport) Connect(reader string) error    { return r.inner.Connect(reader) }
func (r *recordingTransport) Close() error                   { return r.inner.Close() }

func (r *recordingTransport) Transmit(raw []byte) ([]byte, error) {
	if len(raw) < 5 {
		return nil, nil
	}
	p1 := raw[2]
	data := raw[5:]
	switch p1 {
	case 0x00:
		c := &cardPair{sharedSecret: r.shared, clientChallenge: data, cardChallenge: r.cardChallenge}
		return c.step1Response(), nil
	case 0x01:
		c := &cardPair{sharedSecret: r.shared, cardChallenge: r.cardChallenge, index: r.index, salt: r.salt}
		expected := sha256.Sum256(append(append([]byte{}, r.shared...), r.cardChallenge...))
		if !bytes.Equal(expected[:], data) {
			return []byte{0x69, 0x82}, nil
		}
		return c.step2Response(), nil
	default:
		return []byte{0x6A, 0x86}, nil
	}
}

func TestPairWrongPassword(t *testing.T) {
	sharedSecret := kcrypto.DerivePairingSecret("correct horse")
	cardChallenge, _ := kcrypto.RandomBytes(32)
	salt, _ := kcrypto.RandomBytes(32)
	fake := &recordingTransport{inner: transport.NewMock(), shared: sharedSecret, cardChallenge: cardChallenge, index: 1, salt: salt}

	_, err := PairWithSecret(fake, kcrypto.DerivePairingSecret("wrong password"))
	if err != ErrCardAuthFailed {
		t.Fatalf("err = %v, want ErrCardAuthFailed", err)
	}
}

func TestMapPairSW(t *testing.T) {
	cases := []struct {
		sw    uint16
		step1 bool
		want  error
	}{
		{apdu.SWWrongP1P2, true, ErrInvalidP1},
		{apdu.SWWrongData, true, ErrInvalidData},
		{apdu.SWNotEnoughMemory, true, ErrSlotsFull},
		{apdu.SWConditionsNotSatisfied, true, ErrSecureChannelOpen},
		{apdu.SWSecurityNotSatisfied, false, ErrCryptogramFailed},
		{apdu.SWWrongP1P2, false, ErrInvalidP1},
		{0x6F00, true, ErrFailed},
	}
	for _, c := range cases {
		if got := mapPairSW(c.sw, c.step1); got != c.want {
			t.Errorf("mapPairSW(%04X, %v) = %v, want %v", c.sw, c.step1, got, c.want)
		}
	}
}

func TestUnpairRequestShape(t *testing.T) {
	ins, p1, p2, data := UnpairRequest(3)
	if ins != 0x13 || p1 != 3 || p2 != 0 || data != nil {
		t.Errorf("UnpairRequest(3) = %02X %02X %02X %v", ins, p1, p2, data)
	}
}
