// Package transport exposes the reader (PC/SC) seam the Keycard core
// depends on: list readers, connect, transmit a raw APDU, close. Two
// implementations satisfy the interface — PCSC (the real reader, backed
// by github.com/ebfe/scard) and Mock (a scripted stand-in used by tests
// to make APDU construction, encryption and state transitions
// observable without hardware).
package transport

import "errors"

// ErrNotConnected is returned by Transmit when no card session is open.
var ErrNotConnected = errors.New("transport: not connected")

// ErrResponseTooShort is returned by Transmit when the reader returned
// fewer than 2 bytes (not even a status word).
var ErrResponseTooShort = errors.New("transport: response shorter than 2 bytes")

// Transport is the seam between the Keycard core and a physical or
// simulated smart-card reader.
type Transport interface {
	// ListReaders enumerates the names of available PC/SC readers.
	ListReaders() ([]string, error)
	// Connect opens a session against the named reader.
	Connect(reader string) error
	// Transmit sends a raw APDU and returns the raw response bytes
	// (data plus trailing SW1 SW2), or ErrNotConnected /
	// ErrResponseTooShort.
	Transmit(apdu []byte) ([]byte, error)
	// Close releases the reader session. Idempotent.
	Close() error
}
