package kcrypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// PairingPasswordSalt is the fixed salt the Keycard applet uses when
// deriving a pairing shared secret from a human pairing password.
const PairingPasswordSalt = "Keycard Pairing Password Salt"

// PairingIterations is the PBKDF2 iteration count used to derive the
// pairing shared secret.
const PairingIterations = 50000

// DerivePairingSecret runs PBKDF2-HMAC-SHA256 over pairingPassword with
// the fixed Keycard salt and 50,000 iterations, producing the 32-byte
// shared secret used to bootstrap pairing.
func DerivePairingSecret(pairingPassword string) []byte {
	return pbkdf2.Key([]byte(pairingPassword), []byte(PairingPasswordSalt), PairingIterations, 32, sha256.New)
}

// DeriveSessionKeys implements the secure-channel KDF: SHA-512(sharedSecret
// ‖ pairingKey ‖ salt). The first 32 bytes of the digest become the
// encryption key, the last 32 bytes become the MAC key.
func DeriveSessionKeys(sharedSecret, pairingKey, salt []byte) (encKey, macKey []byte) {
	input := make([]byte, 0, len(sharedSecret)+len(pairingKey)+len(salt))
	input = append(input, sharedSecret...)
	input = append(input, pairingKey...)
	input = append(input, salt...)
	digest := SHA512(input)
	return digest[:32], digest[32:]
}
