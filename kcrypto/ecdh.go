package kcrypto

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

const (
	// UncompressedPublicKeyLen is the length of a 0x04‖X‖Y uncompressed
	// secp256k1 public key.
	UncompressedPublicKeyLen = 65
	// PrivateKeyLen is the length of a raw secp256k1 scalar.
	PrivateKeyLen = 32
)

// KeyPair is an ephemeral secp256k1 keypair as used for OPEN SECURE
// CHANNEL and INIT. It is never persisted — callers zero the scalar
// after use via Zero.
type KeyPair struct {
	priv *btcec.PrivateKey
}

// GenerateKeyPair draws 32 random bytes from the CSPRNG and derives a
// secp256k1 keypair from them.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("kcrypto: keypair generation failed: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

// PublicKeyBytes returns the 65-byte uncompressed public key 0x04‖X‖Y.
func (k *KeyPair) PublicKeyBytes() []byte {
	return k.priv.PubKey().SerializeUncompressed()
}

// PrivateKeyBytes returns the raw 32-byte private scalar.
func (k *KeyPair) PrivateKeyBytes() []byte {
	return k.priv.Serialize()
}

// Zero clears the private scalar held by the underlying
// btcec.PrivateKey. Slices returned earlier by PrivateKeyBytes are
// separate copies and are not cleared.
func (k *KeyPair) Zero() {
	k.priv.Zero()
}

// ParsePublicKey validates and parses a 65-byte uncompressed secp256k1
// public key.
func ParsePublicKey(uncompressed []byte) (*btcec.PublicKey, error) {
	if len(uncompressed) != UncompressedPublicKeyLen {
		return nil, ErrInvalidPublicKey
	}
	pub, err := btcec.ParsePubKey(uncompressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// ECDHRawX computes the shared secp256k1 point between own and peer, and
// returns only its X coordinate, left-padded to 32 bytes, unhashed. This
// is a protocol-critical detail: the Keycard applet does not hash the
// ECDH output, so a host that hashes it here will fail to interoperate.
func ECDHRawX(own *KeyPair, peerUncompressed []byte) ([]byte, error) {
	peer, err := ParsePublicKey(peerUncompressed)
	if err != nil {
		return nil, err
	}
	curve := btcec.S256()
	x, y := curve.ScalarMult(peer.X(), peer.Y(), own.priv.Serialize())
	if x.Sign() == 0 && y.Sign() == 0 {
		return nil, fmt.Errorf("kcrypto: ECDH produced the point at infinity")
	}
	out := make([]byte, 32)
	xBytes := x.Bytes()
	copy(out[32-len(xBytes):], xBytes)
	return out, nil
}
