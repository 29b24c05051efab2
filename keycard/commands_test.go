package keycard

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"testing"

	"keycard/kcrypto"
	"keycard/tlv"
)

// cardSimulator is a from-scratch reimplementation of the applet's side
// of SELECT / PAIR / OPEN SECURE CHANNEL / secure exchange, built
// independently of the production encode/decode so that a round trip
// through it genuinely exercises the client rather than testing the
// client against its own logic.
type cardSimulator struct {
	cardKeys *kcrypto.KeyPair

	pairingPassword string
	pairingSecret   []byte
	pairingIndex    byte
	pairingKey      []byte
	pairingSalt     []byte

	pendingClientChallenge []byte
	pendingCardChallenge   []byte

	encKey, macKey, iv []byte
	channelOpen         bool

	correctPIN string
}

func newCardSimulator(t *testing.T, pairingPassword, correctPIN string) *cardSimulator {
	t.Helper()
	kp, err := kcrypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return &cardSimulator{
		cardKeys:        kp,
		pairingPassword: pairingPassword,
		pairingSecret:   kcrypto.DerivePairingSecret(pairingPassword),
		correctPIN:      correctPIN,
	}
}

func (c *cardSimulator) ListReaders() ([]string, error) { return []string{"Simulated Reader"}, nil }
func (c *cardSimulator) Connect(string) error            { return nil }
func (c *cardSimulator) Close() error                     { return nil }

func (c *cardSimulator) Transmit(raw []byte) ([]byte, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("short APDU")
	}
	cla, ins, p1, p2 := raw[0], raw[1], raw[2], raw[3]
	var data []byte
	if len(raw) > 4 {
		lc := int(raw[4])
		data = raw[5 : 5+lc]
	}

	switch {
	case cla == 0x00 && ins == 0xA4:
		return c.select_(), nil
	case ins == 0x12:
		return c.pair(p1, data), nil
	case ins == 0x10:
		return c.openSecureChannel(p1, data), nil
	case c.channelOpen:
		return c.secureExchange(cla, ins, p1, p2, data), nil
	default:
		return []byte{0x6D, 0x00}, nil
	}
}

func (c *cardSimulator) select_() []byte {
	inner := tlv.EncodeAll(tlv.Tags{
		{Tag: 0x8F, Value: bytes.Repeat([]byte{0x01}, 16)},
		{Tag: 0x80, Value: c.cardKeys.PublicKeyBytes()},
		{Tag: 0x02, Value: []byte{0x03, 0x01}},
		{Tag: 0x02, Value: []byte{0x05}},
		{Tag: 0x8E, Value: nil},
		{Tag: 0x8D, Value: []byte{0x0F}},
	})
	return append(tlv.Encode(0xA4, inner), 0x90, 0x00)
}

func (c *cardSimulator) pair(p1 byte, data []byte) []byte {
	switch p1 {
	case 0x00:
		c.pendingClientChallenge = data
		cardChallenge, _ := kcrypto.RandomBytes(32)
		c.pendingCardChallenge = cardChallenge
		cryptogram := sha256.Sum256(append(append([]byte{}, c.pairingSecret...), data...))
		body := append(append([]byte{}, cryptogram[:]...), cardChallenge...)
		return append(body, 0x90, 0x00)
	case 0x01:
		expected := sha256.Sum256(append(append([]byte{}, c.pairingSecret...), c.pendingCardChallenge...))
		if !bytes.Equal(expected[:], data) {
			return []byte{0x69, 0x82}
		}
		c.pairingIndex = 0
		salt, _ := kcrypto.RandomBytes(32)
		c.pairingSalt = salt
		key := sha256.Sum256(append(append([]byte{}, c.pairingSecret...), salt...))
		c.pairingKey = key[:]
		body := append([]byte{c.pairingIndex}, salt...)
		return append(body, 0x90, 0x00)
	default:
		return []byte{0x6A, 0x86}
	}
}

func (c *cardSimulator) openSecureChannel(p1 byte, clientEphemeralPub []byte) []byte {
	if p1 != c.pairingIndex {
		return []byte{0x6A, 0x86}
	}
	shared, err := kcrypto.ECDHRawX(c.cardKeys, clientEphemeralPub)
	if err != nil {
		return []byte{0x6A, 0x80}
	}
	salt, _ := kcrypto.RandomBytes(32)
	iv, _ := kcrypto.RandomBytes(16)
	encKey, macKey := kcrypto.DeriveSessionKeys(shared, c.pairingKey, salt)
	c.encKey, c.macKey, c.iv = encKey, macKey, iv
	c.channelOpen = true
	body := append(append([]byte{}, salt...), iv...)
	return append(body, 0x90, 0x00)
}

func (c *cardSimulator) secureExchange(cla, ins, p1, p2 byte, body []byte) []byte {
	if len(body) < 16 {
		return []byte{0x69, 0x82}
	}
	receivedMac, cipher := body[:16], body[16:]
	lc := byte(len(cipher) + 16)
	macInput := append([]byte{cla, ins, p1, p2, lc}, make([]byte, 11)...)
	macInput = append(macInput, cipher...)
	computed, _ := kcrypto.MAC(c.macKey, macInput, false)
	if !bytes.Equal(computed, receivedMac) {
		c.channelOpen = false
		return []byte{0x69, 0x82}
	}
	// The client encrypted under the IV in effect before its MAC update.
	plaintext, err := kcrypto.DecryptCBC(c.encKey, c.iv, cipher)
	if err != nil {
		c.channelOpen = false
		return []byte{0x69, 0x82}
	}
	c.iv = computed // mirrors the client's "iv becomes the sent MAC"

	var respData []byte
	innerSW := uint16(0x9000)
	switch ins {
	case 0x11: // MUTUALLY AUTHENTICATE
		// any 32-byte challenge is accepted; the MAC is the proof.
	case 0x20: // VERIFY PIN
		if string(plaintext) != c.correctPIN {
			innerSW = 0x63C2
		}
	case 0x13: // UNPAIR
		if p1 != c.pairingIndex {
			innerSW = 0x6A86
		}
	default:
		innerSW = 0x6A81
	}

	respPlain := append(append([]byte{}, respData...), byte(innerSW>>8), byte(innerSW))
	respCipher, _ := kcrypto.EncryptCBC(c.encKey, c.iv, respPlain)
	lr := 16 + len(respCipher)
	respMacInput := append([]byte{byte(lr)}, make([]byte, 15)...)
	respMacInput = append(respMacInput, respCipher...)
	respMac, _ := kcrypto.MAC(c.macKey, respMacInput, false)
	c.iv = respMac

	out := append(append([]byte{}, respMac...), respCipher...)
	return append(out, 0x90, 0x00)
}

func TestFullSessionLifecycle(t *testing.T) {
	card := newCardSimulator(t, "KeycardDefaultPairing", "123456")
	s := NewSession(card)

	if _, err := s.Select(); err != nil {
		t.Fatalf("Select: %v", err)
	}

	rec, err := s.Pair("KeycardDefaultPairing")
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if rec.Index != 0 {
		t.Errorf("pairing index = %d, want 0", rec.Index)
	}

	if err := s.OpenSecureChannel(rec, false); err != nil {
		t.Fatalf("OpenSecureChannel (with mutual auth): %v", err)
	}
	if !s.IsSecureChannelOpen() {
		t.Fatal("channel should be open after a successful OPEN SECURE CHANNEL + MUTUALLY AUTHENTICATE")
	}

	if err := s.VerifyPIN("123456"); err != nil {
		t.Fatalf("VerifyPIN with correct PIN: %v", err)
	}

	if err := s.VerifyPIN("000000"); err == nil || err.Kind != ErrIncorrect {
		t.Fatalf("VerifyPIN with wrong PIN: err = %v, want ErrIncorrect", err)
	}
	if err := s.VerifyPIN("000000"); err == nil || err.RetriesRemaining != 2 {
		t.Fatalf("VerifyPIN retries = %+v, want 2 remaining", err)
	}

	if err := s.Unpair(rec.Index); err != nil {
		t.Fatalf("Unpair: %v", err)
	}
}

func TestPairWrongPasswordThroughSession(t *testing.T) {
	card := newCardSimulator(t, "correct horse battery staple", "123456")
	s := NewSession(card)
	if _, err := s.Select(); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if _, err := s.Pair("wrong password"); err == nil || err.Kind != ErrCardAuthFailed {
		t.Fatalf("Pair with wrong password: err = %v, want ErrCardAuthFailed", err)
	}
}
