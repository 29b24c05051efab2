// Package securechannel implements the Keycard secure channel: an
// ECDH-derived, AES-256-CBC encrypted and AES-CBC-MAC chained session
// tunneled over APDUs. The IV evolves on every round trip and any MAC
// failure is fatal — the channel closes irreversibly and a fresh
// OPEN SECURE CHANNEL is required to recover.
package securechannel

import (
	"errors"
	"fmt"

	"keycard/apdu"
	"keycard/kcrypto"
	"keycard/transport"
)

// ErrInvalidMac is returned when the response MAC does not verify, or
// when the decrypted plaintext is too short to hold an inner status
// word. The channel is always closed before this error is returned.
var ErrInvalidMac = errors.New("securechannel: response MAC verification failed")

// ErrInvalidResponse is returned when a secure response is malformed:
// too short to contain a MAC, or ciphertext that does not decrypt to
// validly padded plaintext. The channel is always closed before this
// error is returned.
var ErrInvalidResponse = errors.New("securechannel: malformed secure response")

// ErrNotOpen is returned by SendSecure when the channel has not been
// opened (or has already been torn down).
var ErrNotOpen = errors.New("securechannel: channel not open")

// responseLengthIsFullBody resolves spec open question #1 (the length
// covered by the response MAC input): this client follows the
// reference behavior of computing Lr over the full received body
// (receivedMac‖cipher), not just the ciphertext. If a real applet is
// ever found to disagree, flip this to false and the other branch in
// decode takes over — both are wired, never guessed away.
const responseLengthIsFullBody = true

// Channel holds the mutable secure-channel state of a single Keycard
// session: the AES-256 encryption and MAC keys, the chained IV, whether
// the channel is open, and which pairing slot it was opened under.
type Channel struct {
	open         bool
	encKey       []byte // 32 bytes
	macKey       []byte // 32 bytes
	iv           []byte // 16 bytes
	pairingIndex byte
}

// New returns a closed Channel, as at Keycard session construction.
func New() *Channel {
	return &Channel{}
}

// IsOpen reports whether the channel is currently usable.
func (c *Channel) IsOpen() bool {
	return c.open
}

// PairingIndex returns the pairing slot the channel was opened under.
func (c *Channel) PairingIndex() byte {
	return c.pairingIndex
}

// Open installs fresh session key material and marks the channel usable.
// Called after a successful OPEN SECURE CHANNEL exchange, before MUTUALLY
// AUTHENTICATE runs.
func (c *Channel) Open(pairingIndex byte, encKey, macKey, iv []byte) error {
	if len(encKey) != kcrypto.KeySize || len(macKey) != kcrypto.KeySize || len(iv) != kcrypto.IVSize {
		return fmt.Errorf("securechannel: invalid key/IV material")
	}
	c.pairingIndex = pairingIndex
	c.encKey = append([]byte(nil), encKey...)
	c.macKey = append([]byte(nil), macKey...)
	c.iv = append([]byte(nil), iv...)
	c.open = true
	return nil
}

// Close zeroes all key material and marks the channel unusable. SendSecure
// calls it on any MAC or decrypt failure, transport error, or raw SW
// other than 0x9000; an inner SW other than 0x9000 leaves the channel
// open. Callers also use it for an explicit reset. Idempotent.
func (c *Channel) Close() {
	kcrypto.Zero(c.encKey)
	kcrypto.Zero(c.macKey)
	kcrypto.Zero(c.iv)
	c.encKey, c.macKey, c.iv = nil, nil, nil
	c.open = false
}

// Result is the outcome of a secure exchange: the inner status word
// (from the applet's logical response, not the raw transport SW) and
// the decrypted response data.
type Result struct {
	SW   uint16
	Data []byte
}

// IsOK reports whether the inner SW is 0x9000.
func (r Result) IsOK() bool {
	return r.SW == apdu.SWSuccess
}

// encode builds the outbound secure APDU body (mac‖cipher) for a command
// with the given header and plaintext data, and advances the channel's
// IV to the computed MAC, per spec §4.4.
func (c *Channel) encode(cla, ins, p1, p2 byte, data []byte) ([]byte, error) {
	cipher, err := kcrypto.EncryptCBC(c.encKey, c.iv, data)
	if err != nil {
		return nil, err
	}
	lc := byte(len(cipher) + kcrypto.IVSize)
	macInput := make([]byte, 0, 4+1+11+len(cipher))
	macInput = append(macInput, cla, ins, p1, p2, lc)
	macInput = append(macInput, make([]byte, 11)...)
	macInput = append(macInput, cipher...)

	mac, err := kcrypto.MAC(c.macKey, macInput, false)
	if err != nil {
		return nil, err
	}
	c.iv = mac

	body := make([]byte, 0, len(mac)+len(cipher))
	body = append(body, mac...)
	body = append(body, cipher...)
	return body, nil
}

// decode verifies and decrypts an inbound secure response body
// (receivedMac‖cipher), advancing the IV to the received MAC on success.
// The caller is responsible for closing the channel if an error is
// returned — decode itself never mutates the IV on failure.
func (c *Channel) decode(body []byte) (Result, error) {
	if len(body) < kcrypto.IVSize {
		return Result{}, ErrInvalidResponse
	}
	receivedMac := body[:kcrypto.IVSize]
	cipher := body[kcrypto.IVSize:]

	lr := len(cipher)
	if responseLengthIsFullBody {
		lr = len(body)
	}
	macInput := make([]byte, 0, 1+15+len(cipher))
	macInput = append(macInput, byte(lr))
	macInput = append(macInput, make([]byte, 15)...)
	macInput = append(macInput, cipher...)

	computed, err := kcrypto.MAC(c.macKey, macInput, false)
	if err != nil {
		return Result{}, err
	}
	if !constantTimeEqual(computed, receivedMac) {
		return Result{}, ErrInvalidMac
	}

	// Decrypt under the IV in effect before this exchange's update (the
	// safer ISO reading of the padding+CBC chain — spec open question #2).
	plaintext, err := kcrypto.DecryptCBC(c.encKey, c.iv, cipher)
	if err != nil {
		return Result{}, ErrInvalidResponse
	}
	if len(plaintext) < 2 {
		return Result{}, ErrInvalidMac
	}
	c.iv = receivedMac

	innerSW := uint16(plaintext[len(plaintext)-2])<<8 | uint16(plaintext[len(plaintext)-1])
	return Result{SW: innerSW, Data: plaintext[:len(plaintext)-2]}, nil
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// SendSecure tunnels one command through the open channel: encrypts and
// MACs data, transmits CLA(default 0x80)/INS/P1/P2 with the wrapped
// body, and decodes the response. Any transport error, MAC failure, or
// raw SW other than 0x9000 closes the channel.
//
// When the raw (transport-level) SW is not 0x9000 — most notably 0x6982
// "secure channel aborted, no MAC" — no MAC/decrypt attempt is made; the
// channel closes and the raw SW is surfaced as Result{SW: rawSW} so the
// command layer can map it.
func (c *Channel) SendSecure(t transport.Transport, cla, ins, p1, p2 byte, data []byte) (Result, error) {
	if !c.open {
		return Result{}, ErrNotOpen
	}
	if cla == 0 {
		cla = 0x80
	}

	body, err := c.encode(cla, ins, p1, p2, data)
	if err != nil {
		c.Close()
		return Result{}, err
	}

	cmd := apdu.NewCommand(cla, ins, p1, p2, body)
	raw, err := cmd.Bytes()
	if err != nil {
		c.Close()
		return Result{}, err
	}

	rawResp, err := t.Transmit(raw)
	if err != nil {
		c.Close()
		return Result{}, fmt.Errorf("securechannel: transport error: %w", err)
	}
	resp, err := apdu.ParseResponse(rawResp)
	if err != nil {
		c.Close()
		return Result{}, err
	}

	if resp.SW != apdu.SWSuccess {
		c.Close()
		return Result{SW: resp.SW}, nil
	}

	result, err := c.decode(resp.Data)
	if err != nil {
		c.Close()
		return Result{}, err
	}
	return result, nil
}
