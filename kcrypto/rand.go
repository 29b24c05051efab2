package kcrypto

import (
	"crypto/rand"
	"fmt"
)

// RandomBytes returns n cryptographically secure random bytes from the
// OS CSPRNG. Every failure here is treated as fatal by callers — a
// broken CSPRNG is not a condition the protocol can recover from.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("kcrypto: CSPRNG read failed: %w", err)
	}
	return buf, nil
}

// Zero overwrites b with zeros in place. Used to clear ephemeral key
// material, PIN buffers and secure-channel state on teardown.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
