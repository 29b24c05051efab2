package kcrypto

// MAC computes the AES-CBC-MAC of msg under a 32-byte key: CBC-encrypt
// msg under macKey with a zero IV, and take the last 16 bytes of
// ciphertext. When pad is true, msg is first padded with ISO/IEC 9797-1
// Method 2; the Keycard protocol pre-pads its MAC inputs by
// construction, so callers pass pad=false for those (the default used
// throughout the secure channel).
func MAC(macKey, msg []byte, pad bool) ([]byte, error) {
	if len(macKey) != KeySize {
		return nil, ErrInvalidKeySize
	}
	data := msg
	if pad {
		data = Pad(msg)
	}
	if len(data)%IVSize != 0 {
		return nil, ErrPaddingError
	}
	zeroIV := make([]byte, IVSize)
	ciphertext, err := EncryptCBCNoPad(macKey, zeroIV, data)
	if err != nil {
		return nil, err
	}
	return ciphertext[len(ciphertext)-IVSize:], nil
}
