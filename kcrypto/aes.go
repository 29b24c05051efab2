package kcrypto

import (
	"crypto/aes"
	"crypto/cipher"
)

const (
	// KeySize is the required AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the required AES block/IV length in bytes.
	IVSize = aes.BlockSize
)

// Pad applies ISO/IEC 9797-1 padding Method 2: append 0x80, then zero-pad
// to the next 16-byte boundary. At least one padding byte is always
// added, even when data is already block-aligned.
func Pad(data []byte) []byte {
	padded := make([]byte, len(data), len(data)+IVSize)
	copy(padded, data)
	padded = append(padded, 0x80)
	for len(padded)%IVSize != 0 {
		padded = append(padded, 0x00)
	}
	return padded
}

// Unpad reverses Pad by scanning backward for the last 0x80 marker and
// truncating it and everything after it away. It fails if no 0x80 byte
// is found, which signals corrupted padding (and, in context, a decrypt
// or MAC failure upstream).
func Unpad(data []byte) ([]byte, error) {
	for i := len(data) - 1; i >= 0; i-- {
		switch data[i] {
		case 0x80:
			return data[:i], nil
		case 0x00:
			continue
		default:
			return nil, ErrPaddingError
		}
	}
	return nil, ErrPaddingError
}

// EncryptCBC encrypts data under an AES-256 key using CBC mode, after
// applying ISO/IEC 9797-1 Method 2 padding. key must be 32 bytes and iv
// must be 16 bytes.
func EncryptCBC(key, iv, data []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	if len(iv) != IVSize {
		return nil, ErrInvalidIVSize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := Pad(data)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// DecryptCBC decrypts ciphertext under an AES-256 key using CBC mode and
// strips ISO/IEC 9797-1 Method 2 padding. key must be 32 bytes, iv must
// be 16 bytes, and len(ciphertext) must be a multiple of 16.
func DecryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	if len(iv) != IVSize {
		return nil, ErrInvalidIVSize
	}
	if len(ciphertext) == 0 || len(ciphertext)%IVSize != 0 {
		return nil, ErrPaddingError
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return Unpad(out)
}

// EncryptCBCNoPad encrypts data (which must already be block-aligned)
// under key/iv without adding any padding. Used internally by the
// AES-CBC-MAC construction, whose inputs are pre-padded by the caller.
func EncryptCBCNoPad(key, iv, data []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	if len(iv) != IVSize {
		return nil, ErrInvalidIVSize
	}
	if len(data)%IVSize != 0 {
		return nil, ErrPaddingError
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}
