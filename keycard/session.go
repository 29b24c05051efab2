// Package keycard is the command layer for the Status Keycard: SELECT,
// INIT, PAIR/UNPAIR, OPEN SECURE CHANNEL, MUTUALLY AUTHENTICATE, PIN
// management, key management, signing, and status/data commands, all
// hung off a single Session aggregate.
package keycard

import (
	"fmt"

	"keycard/apdu"
	"keycard/info"
	"keycard/kcrypto"
	"keycard/pairing"
	"keycard/securechannel"
	"keycard/tlv"
	"keycard/transport"
)

// keycardAID is the applet's ISO 7816-5 application identifier.
var keycardAID = []byte{0xA0, 0x00, 0x00, 0x08, 0x04, 0x00, 0x01, 0x01}

// Session is a single physical-connection-scoped aggregate: the
// transport, the card's applet identity once SELECTed, and the secure
// channel substate. Operations are synchronous and must not be
// interleaved across goroutines — the caller serializes, exactly as the
// card's own APDU ordering requires.
type Session struct {
	transport transport.Transport
	channel   *securechannel.Channel
	info      info.ApplicationInfo
	selected  bool
}

// NewSession wraps t in a fresh, unselected Session.
func NewSession(t transport.Transport) *Session {
	return &Session{transport: t, channel: securechannel.New()}
}

// Connect opens the underlying transport session against the named
// reader.
func (s *Session) Connect(reader string) error {
	if err := s.transport.Connect(reader); err != nil {
		return wrapError(ErrTransport, err)
	}
	return nil
}

// Close tears down the secure channel (if open) and releases the
// transport. Idempotent.
func (s *Session) Close() error {
	s.channel.Close()
	if err := s.transport.Close(); err != nil {
		return wrapError(ErrTransport, err)
	}
	return nil
}

// Info returns the most recently parsed ApplicationInfo (zero value
// before the first successful SELECT).
func (s *Session) Info() info.ApplicationInfo {
	return s.info
}

// IsSecureChannelOpen reports whether a secure channel is currently
// usable for secure-exchange commands.
func (s *Session) IsSecureChannelOpen() bool {
	return s.channel.IsOpen()
}

func (s *Session) requireSelected() *Error {
	if !s.selected {
		return newError(ErrNotSelected)
	}
	return nil
}

func (s *Session) requireChannelOpen() *Error {
	if !s.channel.IsOpen() {
		return newError(ErrChannelNotOpen)
	}
	return nil
}

func (s *Session) requireCapability(cap uint8) *Error {
	if !s.info.HasCapability(cap) {
		return newError(ErrCapabilityNotSupported)
	}
	return nil
}

func (s *Session) transmit(cla, ins, p1, p2 byte, data []byte) (apdu.Response, *Error) {
	cmd := apdu.NewCommand(cla, ins, p1, p2, data)
	raw, err := cmd.Bytes()
	if err != nil {
		return apdu.Response{}, wrapError(ErrInvalidFormat, err)
	}
	rawResp, err := s.transport.Transmit(raw)
	if err != nil {
		return apdu.Response{}, wrapError(ErrTransport, err)
	}
	resp, err := apdu.ParseResponse(rawResp)
	if err != nil {
		return apdu.Response{}, wrapError(ErrTransport, err)
	}
	return resp, nil
}

// Select sends SELECT for the Keycard AID and parses the response,
// refreshing Info() on success. It does not mutate session state on
// failure.
func (s *Session) Select() (info.ApplicationInfo, *Error) {
	resp, err := s.transmit(0x00, 0xA4, 0x04, 0x00, keycardAID)
	if err != nil {
		return info.ApplicationInfo{}, err
	}
	if resp.SW != apdu.SWSuccess {
		return info.ApplicationInfo{}, mapCommonSW(resp.SW)
	}
	parsed, parseErr := info.ParseSelectResponse(resp.Data)
	if parseErr != nil {
		return info.ApplicationInfo{}, wrapError(ErrInvalidResponse, parseErr)
	}
	s.info = parsed
	s.selected = true
	return parsed, nil
}

// Init performs the one-time applet initialization: PIN (6 digits), PUK
// (12 digits) and a pairing password, all protected by an ephemeral
// ECDH exchange with the card's long-term public key obtained at
// SELECT.
func (s *Session) Init(pin, puk, pairingPassword string) *Error {
	if e := s.requireSelected(); e != nil {
		return e
	}
	if len(pin) != 6 {
		return wrapError(ErrInvalidData, fmt.Errorf("keycard: PIN must be 6 digits, got %d", len(pin)))
	}
	if len(puk) != 12 {
		return wrapError(ErrInvalidData, fmt.Errorf("keycard: PUK must be 12 digits, got %d", len(puk)))
	}

	ephemeral, err := kcrypto.GenerateKeyPair()
	if err != nil {
		return wrapError(ErrInvalidFormat, err)
	}
	defer ephemeral.Zero()

	shared, err := kcrypto.ECDHRawX(ephemeral, s.info.PublicKey)
	if err != nil {
		return wrapError(ErrInvalidFormat, err)
	}
	pairingSecret := kcrypto.DerivePairingSecret(pairingPassword)

	iv, err := kcrypto.RandomBytes(kcrypto.IVSize)
	if err != nil {
		return wrapError(ErrInvalidFormat, err)
	}
	plaintext := append(append([]byte{}, []byte(pin)...), []byte(puk)...)
	plaintext = append(plaintext, pairingSecret...)
	cipher, err := kcrypto.EncryptCBC(shared, iv, plaintext)
	if err != nil {
		return wrapError(ErrInvalidFormat, err)
	}

	ePub := ephemeral.PublicKeyBytes()
	body := make([]byte, 0, 1+len(ePub)+len(iv)+len(cipher))
	body = append(body, byte(len(ePub)))
	body = append(body, ePub...)
	body = append(body, iv...)
	body = append(body, cipher...)
	if len(body) > 255 {
		return wrapError(ErrInvalidFormat, fmt.Errorf("keycard: INIT body length %d exceeds 255", len(body)))
	}

	resp, rerr := s.transmit(0x80, 0xFE, 0x00, 0x00, body)
	if rerr != nil {
		return rerr
	}
	if resp.SW != apdu.SWSuccess {
		return mapCommonSW(resp.SW)
	}
	return nil
}

// Ident sends IDENT (INS=0x14) with a caller-supplied 32-byte challenge
// (or a random one if nil), returning the card's identification
// certificate and the DER signature over the challenge.
func (s *Session) Ident(challenge []byte) (cert, signature []byte, kerr *Error) {
	if e := s.requireSelected(); e != nil {
		return nil, nil, e
	}
	if challenge == nil {
		var err error
		challenge, err = kcrypto.RandomBytes(32)
		if err != nil {
			return nil, nil, wrapError(ErrInvalidFormat, err)
		}
	}
	if len(challenge) != 32 {
		return nil, nil, wrapError(ErrInvalidFormat, fmt.Errorf("keycard: IDENT challenge must be 32 bytes"))
	}

	resp, rerr := s.transmit(0x80, 0x14, 0x00, 0x00, challenge)
	if rerr != nil {
		return nil, nil, rerr
	}
	if resp.SW != apdu.SWSuccess {
		if resp.SW == apdu.SWWrongData {
			return nil, nil, swError(ErrInvalidFormat, resp.SW)
		}
		return nil, nil, mapCommonSW(resp.SW)
	}

	items := parseIdentResponse(resp.Data)
	if items == nil {
		return nil, nil, newError(ErrInvalidResponse)
	}
	return items.cert, items.sig, nil
}

type identFields struct {
	cert []byte
	sig  []byte
}

func parseIdentResponse(data []byte) *identFields {
	items := tlv.Parse(data)
	if len(items) == 0 || items[0].Tag != 0xA0 {
		return nil
	}
	inner := tlv.Parse(items[0].Value)
	cert := inner.Find(0x8A)
	sig := inner.Find(0x30)
	if len(cert) < 65 {
		return nil
	}
	return &identFields{cert: cert, sig: sig}
}

// Pair runs the two-step cryptogram exchange and returns the resulting
// pairing record. The caller is responsible for persisting it.
func (s *Session) Pair(pairingPassword string) (pairing.Record, *Error) {
	if e := s.requireSelected(); e != nil {
		return pairing.Record{}, e
	}
	rec, err := pairing.Pair(s.transport, pairingPassword)
	if err != nil {
		return pairing.Record{}, mapPairingErr(err)
	}
	return rec, nil
}

func mapPairingErr(err error) *Error {
	switch err {
	case pairing.ErrInvalidP1:
		return newError(ErrInvalidP1)
	case pairing.ErrInvalidData:
		return newError(ErrInvalidData)
	case pairing.ErrSlotsFull:
		return newError(ErrSlotsFull)
	case pairing.ErrSecureChannelOpen:
		return newError(ErrConditionsNotMet)
	case pairing.ErrCardAuthFailed:
		return newError(ErrCardAuthFailed)
	case pairing.ErrCryptogramFailed:
		return newError(ErrCryptogramFailed)
	default:
		return wrapError(ErrUnknown, err)
	}
}

// Unpair releases a pairing slot. Requires an open secure channel over
// (typically) the same slot being released.
func (s *Session) Unpair(pairingIndex byte) *Error {
	if e := s.requireChannelOpen(); e != nil {
		return e
	}
	ins, p1, p2, data := pairing.UnpairRequest(pairingIndex)
	result, err := s.channel.SendSecure(s.transport, 0x80, ins, p1, p2, data)
	if err != nil {
		return wrapError(ErrTransport, err)
	}
	if !result.IsOK() {
		switch result.SW {
		case apdu.SWConditionsNotSatisfied:
			return swError(ErrConditionsNotMet, result.SW)
		case apdu.SWWrongP1P2:
			return swError(ErrInvalidIndex, result.SW)
		default:
			return mapCommonSW(result.SW)
		}
	}
	return nil
}

// OpenSecureChannel performs OPEN SECURE CHANNEL under the given pairing
// record, then immediately runs MUTUALLY AUTHENTICATE unless
// skipMutualAuth is set. On any failure following key installation, the
// channel is left (or forced) closed.
func (s *Session) OpenSecureChannel(rec pairing.Record, skipMutualAuth bool) *Error {
	if e := s.requireSelected(); e != nil {
		return e
	}
	ephemeral, err := kcrypto.GenerateKeyPair()
	if err != nil {
		return wrapError(ErrInvalidFormat, err)
	}
	defer ephemeral.Zero()

	ePub := ephemeral.PublicKeyBytes()
	resp, rerr := s.transmit(0x80, 0x10, rec.Index, 0x00, ePub)
	if rerr != nil {
		return rerr
	}
	if resp.SW != apdu.SWSuccess {
		switch resp.SW {
		case apdu.SWWrongP1P2:
			return swError(ErrInvalidP1, resp.SW)
		case apdu.SWWrongData:
			return swError(ErrInvalidData, resp.SW)
		default:
			return mapCommonSW(resp.SW)
		}
	}
	if len(resp.Data) != 48 {
		return newError(ErrInvalidResponse)
	}
	salt := resp.Data[:32]
	iv := resp.Data[32:]

	shared, err := kcrypto.ECDHRawX(ephemeral, s.info.PublicKey)
	if err != nil {
		return wrapError(ErrInvalidFormat, err)
	}
	encKey, macKey := kcrypto.DeriveSessionKeys(shared, rec.Key[:], salt)

	if openErr := s.channel.Open(rec.Index, encKey, macKey, iv); openErr != nil {
		return wrapError(ErrInvalidFormat, openErr)
	}

	if skipMutualAuth {
		return nil
	}
	return s.MutuallyAuthenticate()
}

// MutuallyAuthenticate sends a random 32-byte challenge through the
// freshly opened secure channel. Any failure forces the channel closed.
func (s *Session) MutuallyAuthenticate() *Error {
	if e := s.requireChannelOpen(); e != nil {
		return e
	}
	challenge, err := kcrypto.RandomBytes(32)
	if err != nil {
		s.channel.Close()
		return wrapError(ErrInvalidFormat, err)
	}
	result, err := s.channel.SendSecure(s.transport, 0x80, 0x11, 0x00, 0x00, challenge)
	if err != nil {
		return wrapError(ErrInvalidMac, err)
	}
	if !result.IsOK() {
		s.channel.Close()
		switch result.SW {
		case apdu.SWSecurityNotSatisfied:
			return swError(ErrAuthenticationFailed, result.SW)
		case apdu.SWConditionsNotSatisfied:
			return swError(ErrConditionsNotMet, result.SW)
		default:
			return mapCommonSW(result.SW)
		}
	}
	return nil
}
