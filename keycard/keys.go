package keycard

import (
	"fmt"

	"keycard/apdu"
	"keycard/info"
	"keycard/keypath"
	"keycard/tlv"
)

// GenerateKey asks the card to generate a fresh keypair on-card,
// returning its 32-byte key UID (SHA-256 of the public key). Requires
// KeyManagement and a verified PIN (the card itself enforces the PIN
// check; this call only gates on capability).
func (s *Session) GenerateKey() ([]byte, *Error) {
	if e := s.requireChannelOpen(); e != nil {
		return nil, e
	}
	if e := s.requireCapability(info.CapKeyManagement); e != nil {
		return nil, e
	}
	result, err := s.channel.SendSecure(s.transport, 0x80, 0xD4, 0x00, 0x00, nil)
	if err != nil {
		return nil, wrapError(ErrInvalidMac, err)
	}
	if !result.IsOK() {
		return nil, mapCommonSW(result.SW)
	}
	if len(result.Data) != 32 {
		return nil, newError(ErrInvalidResponse)
	}
	return result.Data, nil
}

// RemoveKey deletes the currently loaded key. Requires KeyManagement.
func (s *Session) RemoveKey() *Error {
	if e := s.requireChannelOpen(); e != nil {
		return e
	}
	if e := s.requireCapability(info.CapKeyManagement); e != nil {
		return e
	}
	result, err := s.channel.SendSecure(s.transport, 0x80, 0xD3, 0x00, 0x00, nil)
	if err != nil {
		return wrapError(ErrInvalidMac, err)
	}
	if !result.IsOK() {
		return mapCommonSW(result.SW)
	}
	return nil
}

// LoadKeyKind selects the LOAD KEY P1 variant.
type LoadKeyKind byte

const (
	LoadECCKeypair         LoadKeyKind = 0x01
	LoadExtendedECCKeypair LoadKeyKind = 0x02
	LoadBIP39Seed          LoadKeyKind = 0x03
)

// LoadECCKeypair installs an externally generated ECC keypair. pub may
// be nil (the card derives it) but priv (32 bytes) is required; chainCode
// (32 bytes) is only meaningful with LoadExtendedECCKeypair. LOAD KEY
// clears any configured PIN-less path.
func (s *Session) LoadECCKeypair(kind LoadKeyKind, pub, priv, chainCode []byte) ([]byte, *Error) {
	if kind != LoadECCKeypair && kind != LoadExtendedECCKeypair {
		return nil, newError(ErrInvalidP1)
	}
	if len(priv) != 32 {
		return nil, wrapError(ErrInvalidFormat, fmt.Errorf("keycard: private key must be 32 bytes"))
	}
	items := tlv.Tags{}
	if len(pub) > 0 {
		items = append(items, tlv.Tag{Tag: 0x80, Value: pub})
	}
	items = append(items, tlv.Tag{Tag: 0x81, Value: priv})
	if kind == LoadExtendedECCKeypair {
		if len(chainCode) != 32 {
			return nil, wrapError(ErrInvalidFormat, fmt.Errorf("keycard: chain code must be 32 bytes"))
		}
		items = append(items, tlv.Tag{Tag: 0x82, Value: chainCode})
	}
	body := tlv.Encode(0xA1, tlv.EncodeAll(items))
	return s.loadKey(kind, body)
}

// LoadSeed installs a 64-byte BIP39 seed directly, bypassing mnemonic
// generation. LOAD KEY clears any configured PIN-less path.
func (s *Session) LoadSeed(seed []byte) ([]byte, *Error) {
	if len(seed) != 64 {
		return nil, wrapError(ErrInvalidFormat, fmt.Errorf("keycard: BIP39 seed must be 64 bytes, got %d", len(seed)))
	}
	return s.loadKey(LoadBIP39Seed, seed)
}

func (s *Session) loadKey(kind LoadKeyKind, body []byte) ([]byte, *Error) {
	if e := s.requireChannelOpen(); e != nil {
		return nil, e
	}
	if e := s.requireCapability(info.CapKeyManagement); e != nil {
		return nil, e
	}
	result, err := s.channel.SendSecure(s.transport, 0x80, 0xD0, byte(kind), 0x00, body)
	if err != nil {
		return nil, wrapError(ErrInvalidMac, err)
	}
	if !result.IsOK() {
		return nil, mapCommonSW(result.SW)
	}
	if len(result.Data) != 32 {
		return nil, newError(ErrInvalidResponse)
	}
	return result.Data, nil
}

// GenerateMnemonic asks the card to derive a BIP39 word-index sequence
// from freshly generated entropy. checksumBits must be in [4,8]; the
// resulting word count is 12 + (checksumBits-4)*3. Only word indexes
// (0..2047) are returned — resolving them against a wordlist is the
// caller's job.
func (s *Session) GenerateMnemonic(checksumBits int) ([]uint16, *Error) {
	if checksumBits < 4 || checksumBits > 8 {
		return nil, newError(ErrInvalidP1)
	}
	if e := s.requireChannelOpen(); e != nil {
		return nil, e
	}
	result, err := s.channel.SendSecure(s.transport, 0x80, 0xD2, byte(checksumBits), 0x00, nil)
	if err != nil {
		return nil, wrapError(ErrInvalidMac, err)
	}
	if !result.IsOK() {
		return nil, mapCommonSW(result.SW)
	}
	if len(result.Data)%2 != 0 {
		return nil, newError(ErrInvalidResponse)
	}
	words := make([]uint16, len(result.Data)/2)
	for i := range words {
		words[i] = uint16(result.Data[2*i])<<8 | uint16(result.Data[2*i+1])
	}
	return words, nil
}

// DerivationOption selects how EXPORT KEY / SIGN derive relative to the
// card's current key.
type DerivationOption byte

const (
	DeriveCurrent        DerivationOption = 0x00
	DeriveAndStay        DerivationOption = 0x01 // "derive"
	DeriveAndMakeCurrent DerivationOption = 0x02
	DerivePinless        DerivationOption = 0x03 // SIGN only
)

// ExportedKey is the parsed response body of EXPORT KEY: any subset of
// the three fields may be present depending on P2.
type ExportedKey struct {
	PublicKey  []byte
	PrivateKey []byte
	ChainCode  []byte
}

// ExportKeyFormat selects EXPORT KEY's P2 (which fields come back).
type ExportKeyFormat byte

const (
	ExportPrivateAndPublic ExportKeyFormat = 0x00
	ExportPublicOnly       ExportKeyFormat = 0x01
	ExportExtendedPublic   ExportKeyFormat = 0x02
)

// ExportKey derives (per opt) and exports key material for path. An
// empty path is valid for DeriveCurrent (export the current key
// unchanged).
func (s *Session) ExportKey(opt DerivationOption, path keypath.Path, format ExportKeyFormat) (ExportedKey, *Error) {
	if opt == DerivePinless {
		return ExportedKey{}, newError(ErrInvalidP1)
	}
	if e := s.requireChannelOpen(); e != nil {
		return ExportedKey{}, e
	}
	body := encodeDerivationBody(opt, path)
	result, err := s.channel.SendSecure(s.transport, 0x80, 0xC2, derivationP1(opt, path), byte(format), body)
	if err != nil {
		return ExportedKey{}, wrapError(ErrInvalidMac, err)
	}
	if !result.IsOK() {
		switch result.SW {
		case apdu.SWConditionsNotSatisfied:
			return ExportedKey{}, swError(ErrPrivateNotExportable, result.SW)
		case apdu.SWWrongData:
			return ExportedKey{}, swError(ErrInvalidPath, result.SW)
		case apdu.SWWrongP1P2:
			return ExportedKey{}, swError(ErrInvalidParams, result.SW)
		default:
			return ExportedKey{}, mapCommonSW(result.SW)
		}
	}
	items := tlv.Parse(result.Data)
	if len(items) == 0 || items[0].Tag != 0xA1 {
		return ExportedKey{}, newError(ErrInvalidResponse)
	}
	inner := tlv.Parse(items[0].Value)
	return ExportedKey{
		PublicKey:  inner.Find(0x80),
		PrivateKey: inner.Find(0x81),
		ChainCode:  inner.Find(0x82),
	}, nil
}

// Signature is the host-normalized result of SIGN: r and s each
// left-padded to 32 bytes. RecoveryID is only populated when the card
// returned the raw-signature response shape (tag 0x80); the
// TLV-template shape carries no recovery ID.
type Signature struct {
	R, S       [32]byte
	RecoveryID byte
	HasRecID   bool
	PublicKey  []byte // only present in the TLV-template response shape
}

// Sign requests an ECDSA-secp256k1 signature over hash (32 bytes).
// DerivePinless bypasses the secure channel entirely, sending the
// request in the clear, per spec.
func (s *Session) Sign(hash []byte, opt DerivationOption, path keypath.Path) (Signature, *Error) {
	if len(hash) != 32 {
		return Signature{}, wrapError(ErrDataTooShort, fmt.Errorf("keycard: SIGN hash must be 32 bytes, got %d", len(hash)))
	}
	body := append(append([]byte{}, hash...), encodeDerivationBody(opt, path)...)

	var resp apdu.Response
	var rerr *Error
	if opt == DerivePinless {
		if e := s.requireSelected(); e != nil {
			return Signature{}, e
		}
		resp, rerr = s.transmit(0x80, 0xC0, derivationP1(opt, path), 0x00, body)
		if rerr != nil {
			return Signature{}, rerr
		}
		if resp.SW != apdu.SWSuccess {
			return Signature{}, mapSignSW(resp.SW)
		}
		return parseSignResponse(resp.Data)
	}

	if e := s.requireChannelOpen(); e != nil {
		return Signature{}, e
	}
	result, err := s.channel.SendSecure(s.transport, 0x80, 0xC0, derivationP1(opt, path), 0x00, body)
	if err != nil {
		return Signature{}, wrapError(ErrInvalidMac, err)
	}
	if !result.IsOK() {
		return Signature{}, mapSignSW(result.SW)
	}
	return parseSignResponse(result.Data)
}

func mapSignSW(sw uint16) *Error {
	switch sw {
	case apdu.SWWrongData:
		return swError(ErrDataTooShort, sw)
	case apdu.SWFuncNotSupported:
		return swError(ErrAlgorithmNotSupported, sw)
	case apdu.SWReferencedDataNotFound:
		return swError(ErrNoPinlessPath, sw)
	case apdu.SWConditionsNotSatisfied:
		return swError(ErrConditionsNotMet, sw)
	default:
		return mapCommonSW(sw)
	}
}

func parseSignResponse(data []byte) (Signature, *Error) {
	items := tlv.Parse(data)
	if len(items) == 0 {
		return Signature{}, newError(ErrInvalidResponse)
	}
	switch items[0].Tag {
	case 0x80:
		if len(items[0].Value) != 65 {
			return Signature{}, newError(ErrInvalidResponse)
		}
		raw := items[0].Value
		var sig Signature
		copy(sig.R[:], raw[:32])
		copy(sig.S[:], raw[32:64])
		sig.RecoveryID = raw[64]
		sig.HasRecID = true
		return sig, nil
	case 0xA0:
		inner := tlv.Parse(items[0].Value)
		pub := inner.Find(0x80)
		der := inner.Find(0x30)
		r, s, err := parseDERSignature(der)
		if err != nil {
			return Signature{}, wrapError(ErrInvalidResponse, err)
		}
		sig := Signature{PublicKey: pub}
		copy(sig.R[:], r)
		copy(sig.S[:], s)
		return sig, nil
	default:
		return Signature{}, newError(ErrInvalidResponse)
	}
}

// parseDERSignature extracts r and s from a minimal DER ECDSA signature
// (SEQUENCE { INTEGER r, INTEGER s }) and normalizes each to 32 bytes:
// strip a DER leading zero added to keep the high bit from signaling a
// negative integer, then left-pad to 32 bytes.
func parseDERSignature(der []byte) (r, s []byte, err error) {
	if len(der) < 8 || der[0] != 0x30 {
		return nil, nil, fmt.Errorf("keycard: malformed DER signature")
	}
	i := 2
	if der[1]&0x80 != 0 {
		i = 2 + int(der[1]&0x7F)
	}
	readInt := func() ([]byte, error) {
		if i >= len(der) || der[i] != 0x02 {
			return nil, fmt.Errorf("keycard: expected DER INTEGER")
		}
		i++
		if i >= len(der) {
			return nil, fmt.Errorf("keycard: truncated DER INTEGER")
		}
		n := int(der[i])
		i++
		if i+n > len(der) {
			return nil, fmt.Errorf("keycard: truncated DER INTEGER value")
		}
		v := der[i : i+n]
		i += n
		for len(v) > 0 && v[0] == 0x00 {
			v = v[1:]
		}
		out := make([]byte, 32)
		copy(out[32-len(v):], v)
		return out, nil
	}
	r, err = readInt()
	if err != nil {
		return nil, nil, err
	}
	s, err = readInt()
	if err != nil {
		return nil, nil, err
	}
	return r, s, nil
}

// SetPinlessPath configures (or, with an empty path, disables) the
// PIN-less signing path.
func (s *Session) SetPinlessPath(path keypath.Path) *Error {
	if e := s.requireChannelOpen(); e != nil {
		return e
	}
	result, err := s.channel.SendSecure(s.transport, 0x80, 0xC1, 0x00, 0x00, path.Encode())
	if err != nil {
		return wrapError(ErrInvalidMac, err)
	}
	if !result.IsOK() {
		switch result.SW {
		case apdu.SWWrongData:
			return swError(ErrInvalidData, result.SW)
		case apdu.SWConditionsNotSatisfied:
			return swError(ErrConditionsNotMet, result.SW)
		default:
			return mapCommonSW(result.SW)
		}
	}
	return nil
}

// derivationP1 folds the derivation option and the path's source
// indicator into a single P1 byte, per the EXPORT KEY / SIGN wire
// convention (deriveSource ∈ {0x00 master, 0x40 parent, 0x80 current}
// ORed with the low derivationOption bits).
func derivationP1(opt DerivationOption, path keypath.Path) byte {
	p1 := byte(opt)
	if opt == DeriveCurrent {
		return p1
	}
	switch path.Source {
	case keypath.Master:
		p1 |= 0x00
	case keypath.Parent:
		p1 |= 0x40
	case keypath.Current:
		p1 |= 0x80
	}
	return p1
}

// encodeDerivationBody encodes the path component of a derive-mode
// request body; empty for the current-key-no-derivation case.
func encodeDerivationBody(opt DerivationOption, path keypath.Path) []byte {
	if opt == DeriveCurrent {
		return nil
	}
	return path.Encode()
}
