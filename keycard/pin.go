package keycard

import (
	"fmt"

	"keycard/apdu"
	"keycard/info"
	"keycard/kcrypto"
)

// VerifyPIN sends the user PIN over the secure channel. A 0x63Cn SW maps
// to an Error with Kind ErrIncorrect and RetriesRemaining = n; n == 0
// means the PIN is now blocked (Kind ErrBlocked).
func (s *Session) VerifyPIN(pin string) *Error {
	if e := s.requireChannelOpen(); e != nil {
		return e
	}
	result, err := s.channel.SendSecure(s.transport, 0x80, 0x20, 0x00, 0x00, []byte(pin))
	if err != nil {
		return wrapError(ErrInvalidMac, err)
	}
	if !result.IsOK() {
		return mapCommonSW(result.SW)
	}
	return nil
}

// ChangeSecretKind selects which credential CHANGE SECRET updates.
type ChangeSecretKind byte

const (
	ChangeUserPIN       ChangeSecretKind = 0x00
	ChangePUK           ChangeSecretKind = 0x01
	ChangePairingSecret ChangeSecretKind = 0x02
)

// ChangeSecret updates the user PIN (6 digits), PUK (12 digits), or
// pairing secret (an arbitrary string, run through the same PBKDF2 used
// at INIT/PAIR to produce 32 bytes). Requires the Credentials
// capability and an open secure channel.
func (s *Session) ChangeSecret(kind ChangeSecretKind, value string) *Error {
	if e := s.requireChannelOpen(); e != nil {
		return e
	}
	if e := s.requireCapability(info.CapCredentials); e != nil {
		return e
	}

	var body []byte
	switch kind {
	case ChangeUserPIN:
		if len(value) != 6 {
			return wrapError(ErrInvalidFormat, fmt.Errorf("keycard: PIN must be 6 digits, got %d", len(value)))
		}
		body = []byte(value)
	case ChangePUK:
		if len(value) != 12 {
			return wrapError(ErrInvalidFormat, fmt.Errorf("keycard: PUK must be 12 digits, got %d", len(value)))
		}
		body = []byte(value)
	case ChangePairingSecret:
		body = kcrypto.DerivePairingSecret(value)
	default:
		return newError(ErrInvalidP1)
	}

	result, err := s.channel.SendSecure(s.transport, 0x80, 0x21, byte(kind), 0x00, body)
	if err != nil {
		return wrapError(ErrInvalidMac, err)
	}
	if !result.IsOK() {
		switch result.SW {
		case apdu.SWWrongData:
			return swError(ErrInvalidFormat, result.SW)
		case apdu.SWWrongP1P2:
			return swError(ErrInvalidP1, result.SW)
		case apdu.SWConditionsNotSatisfied:
			return swError(ErrConditionsNotMet, result.SW)
		default:
			return mapCommonSW(result.SW)
		}
	}
	return nil
}

// UnblockPIN resets a blocked user PIN using the PUK. body = PUK(12) ‖
// newPin(6). A 0x63Cn SW means the PUK itself was wrong; n == 0 means
// the PUK is blocked and the wallet's credentials are unrecoverable via
// this path.
func (s *Session) UnblockPIN(puk, newPIN string) *Error {
	if e := s.requireChannelOpen(); e != nil {
		return e
	}
	if e := s.requireCapability(info.CapCredentials); e != nil {
		return e
	}
	if len(puk) != 12 {
		return wrapError(ErrInvalidFormat, fmt.Errorf("keycard: PUK must be 12 digits, got %d", len(puk)))
	}
	if len(newPIN) != 6 {
		return wrapError(ErrInvalidFormat, fmt.Errorf("keycard: new PIN must be 6 digits, got %d", len(newPIN)))
	}
	body := append([]byte(puk), []byte(newPIN)...)

	result, err := s.channel.SendSecure(s.transport, 0x80, 0x22, 0x00, 0x00, body)
	if err != nil {
		return wrapError(ErrInvalidMac, err)
	}
	if !result.IsOK() {
		return mapCommonSW(result.SW)
	}
	return nil
}
