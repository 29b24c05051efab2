// Package pairing implements the Keycard two-step SHA-256 cryptogram
// exchange (PAIR, INS=0x12) that establishes a persistent pairing slot
// and derives the pairing key used later to open a secure channel.
package pairing

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"keycard/apdu"
	"keycard/kcrypto"
	"keycard/transport"
)

// Record is the result of a successful pairing exchange: the slot index
// the card assigned, the derived 32-byte pairing key, and the 32-byte
// salt it was derived from. Persistence across process runs is the
// caller's responsibility — this package never stores it.
type Record struct {
	Index byte
	Key   [32]byte
	Salt  [32]byte
}

// Sentinel errors mapped from PAIR status words, per step.
var (
	ErrInvalidP1         = errors.New("pairing: invalid P1")
	ErrInvalidData       = errors.New("pairing: invalid data")
	ErrSlotsFull         = errors.New("pairing: no pairing slots available")
	ErrSecureChannelOpen = errors.New("pairing: secure channel must be closed first")
	ErrCardAuthFailed    = errors.New("pairing: card cryptogram verification failed")
	ErrCryptogramFailed  = errors.New("pairing: card rejected client cryptogram")
	ErrFailed            = errors.New("pairing: failed")
)

const (
	insPair    byte = 0x12
	p1Challenge byte = 0x00
	p1Cryptogram byte = 0x01
)

// Pair runs the full two-step exchange over t, deriving the shared
// secret from pairingPassword via PBKDF2 first. A fresh 32-byte client
// challenge is drawn from the CSPRNG for step 1.
func Pair(t transport.Transport, pairingPassword string) (Record, error) {
	sharedSecret := kcrypto.DerivePairingSecret(pairingPassword)
	return pairWithSecret(t, sharedSecret)
}

// PairWithSecret runs the exchange with an already-derived 32-byte
// shared secret, for callers that cache PBKDF2 output across pairings.
func PairWithSecret(t transport.Transport, sharedSecret []byte) (Record, error) {
	return pairWithSecret(t, sharedSecret)
}

func pairWithSecret(t transport.Transport, sharedSecret []byte) (Record, error) {
	clientChallenge, err := kcrypto.RandomBytes(32)
	if err != nil {
		return Record{}, fmt.Errorf("pairing: generating client challenge: %w", err)
	}

	cardChallenge, err := step1(t, sharedSecret, clientChallenge)
	if err != nil {
		return Record{}, err
	}

	index, salt, err := step2(t, sharedSecret, cardChallenge)
	if err != nil {
		return Record{}, err
	}

	key := sha256.Sum256(append(append([]byte{}, sharedSecret...), salt...))

	rec := Record{Index: index}
	copy(rec.Key[:], key[:])
	copy(rec.Salt[:], salt)
	return rec, nil
}

// step1 sends the client challenge, verifies the card's cryptogram, and
// returns the card's own challenge for step 2.
func step1(t transport.Transport, sharedSecret, clientChallenge []byte) ([]byte, error) {
	cmd := apdu.NewCommand(0x80, insPair, p1Challenge, 0x00, clientChallenge)
	raw, err := cmd.Bytes()
	if err != nil {
		return nil, err
	}
	rawResp, err := t.Transmit(raw)
	if err != nil {
		return nil, fmt.Errorf("pairing: transport error: %w", err)
	}
	resp, err := apdu.ParseResponse(rawResp)
	if err != nil {
		return nil, err
	}
	if resp.SW != apdu.SWSuccess {
		return nil, mapPairSW(resp.SW, true)
	}
	if len(resp.Data) != 64 {
		return nil, fmt.Errorf("pairing: step 1 response length %d, want 64", len(resp.Data))
	}
	cardCryptogram := resp.Data[:32]
	cardChallenge := resp.Data[32:]

	expected := sha256.Sum256(append(append([]byte{}, sharedSecret...), clientChallenge...))
	if !bytes.Equal(expected[:], cardCryptogram) {
		return nil, ErrCardAuthFailed
	}
	return cardChallenge, nil
}

// step2 sends the client's own cryptogram over the card challenge and
// returns the assigned pairing index and salt.
func step2(t transport.Transport, sharedSecret, cardChallenge []byte) (byte, []byte, error) {
	cryptogram := sha256.Sum256(append(append([]byte{}, sharedSecret...), cardChallenge...))

	cmd := apdu.NewCommand(0x80, insPair, p1Cryptogram, 0x00, cryptogram[:])
	raw, err := cmd.Bytes()
	if err != nil {
		return 0, nil, err
	}
	rawResp, err := t.Transmit(raw)
	if err != nil {
		return 0, nil, fmt.Errorf("pairing: transport error: %w", err)
	}
	resp, err := apdu.ParseResponse(rawResp)
	if err != nil {
		return 0, nil, err
	}
	if resp.SW != apdu.SWSuccess {
		return 0, nil, mapPairSW(resp.SW, false)
	}
	if len(resp.Data) != 33 {
		return 0, nil, fmt.Errorf("pairing: step 2 response length %d, want 33", len(resp.Data))
	}
	return resp.Data[0], resp.Data[1:], nil
}

func mapPairSW(sw uint16, step1 bool) error {
	switch sw {
	case apdu.SWWrongP1P2:
		return ErrInvalidP1
	case apdu.SWWrongData:
		return ErrInvalidData
	case apdu.SWNotEnoughMemory:
		return ErrSlotsFull
	case apdu.SWConditionsNotSatisfied:
		return ErrSecureChannelOpen
	case apdu.SWSecurityNotSatisfied:
		if !step1 {
			return ErrCryptogramFailed
		}
		return ErrFailed
	default:
		return ErrFailed
	}
}

// UnpairRequest returns the INS/P1/P2/data of the UNPAIR command
// (INS=0x13, P1=pairingIndex), which the caller sends through an
// already-open secure channel; this package only shapes the request, it
// does not itself know about secure-channel framing.
func UnpairRequest(pairingIndex byte) (ins, p1, p2 byte, data []byte) {
	return 0x13, pairingIndex, 0x00, nil
}
