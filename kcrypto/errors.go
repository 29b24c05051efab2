package kcrypto

import "errors"

// ErrInvalidKeySize is returned by AES operations when the key is not
// exactly 32 bytes (AES-256).
var ErrInvalidKeySize = errors.New("kcrypto: invalid key size, want 32 bytes")

// ErrInvalidIVSize is returned by AES-CBC operations when the IV is not
// exactly 16 bytes.
var ErrInvalidIVSize = errors.New("kcrypto: invalid IV size, want 16 bytes")

// ErrPaddingError is returned by Unpad when no ISO/IEC 9797-1 Method 2
// padding marker (0x80) can be found while scanning backward.
var ErrPaddingError = errors.New("kcrypto: invalid padding")

// ErrInvalidPublicKey is returned when a 65-byte uncompressed secp256k1
// public key fails to parse or does not lie on the curve.
var ErrInvalidPublicKey = errors.New("kcrypto: invalid secp256k1 public key")
