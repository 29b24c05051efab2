package transport

import (
	"bytes"
	"fmt"
)

// LoggedExchange is one recorded Transmit call: the raw APDU sent and the
// raw response returned (or the error instead).
type LoggedExchange struct {
	Sent     []byte
	Received []byte
	Err      error
}

// ScriptedResponse is one entry of a Mock's response script. When Match
// is non-nil, it is compared against the outgoing APDU and only used on
// an exact match; otherwise entries are consumed in FIFO order.
type ScriptedResponse struct {
	Match    []byte
	Response []byte
	Err      error
}

// Mock is a scripted Transport used by tests to make APDU construction,
// secure-channel encryption and session state transitions observable
// without a physical reader.
type Mock struct {
	readers   []string
	connected string
	script    []ScriptedResponse
	log       []LoggedExchange
}

// NewMock creates a Mock reporting the given reader names from ListReaders.
func NewMock(readers ...string) *Mock {
	if len(readers) == 0 {
		readers = []string{"Mock Reader 00"}
	}
	return &Mock{readers: readers}
}

// ListReaders returns the configured reader names.
func (m *Mock) ListReaders() ([]string, error) {
	return m.readers, nil
}

// Connect records the reader name as connected; any name is accepted.
func (m *Mock) Connect(reader string) error {
	m.connected = reader
	return nil
}

// Close clears the connected state. Idempotent.
func (m *Mock) Close() error {
	m.connected = ""
	return nil
}

// Push appends a scripted response returned, in order, on the next
// Transmit calls that don't specify a Match.
func (m *Mock) Push(response []byte) {
	m.script = append(m.script, ScriptedResponse{Response: response})
}

// PushSW appends a scripted response consisting only of a status word.
func (m *Mock) PushSW(sw uint16) {
	m.Push([]byte{byte(sw >> 8), byte(sw)})
}

// PushError appends a scripted Transmit failure.
func (m *Mock) PushError(err error) {
	m.script = append(m.script, ScriptedResponse{Err: err})
}

// PushMatching appends a response that is only used when the outgoing
// APDU equals match exactly; otherwise it is skipped in favor of the
// next entry. Used to script multi-step exchanges out of order.
func (m *Mock) PushMatching(match, response []byte) {
	m.script = append(m.script, ScriptedResponse{Match: match, Response: response})
}

// Transmit returns the next scripted response. If the connected reader
// is empty, ErrNotConnected is returned exactly as a real transport
// would for a closed session.
func (m *Mock) Transmit(apdu []byte) ([]byte, error) {
	if m.connected == "" {
		err := ErrNotConnected
		m.log = append(m.log, LoggedExchange{Sent: apdu, Err: err})
		return nil, err
	}
	if len(m.script) == 0 {
		err := fmt.Errorf("transport: mock script exhausted, unexpected transmit % X", apdu)
		m.log = append(m.log, LoggedExchange{Sent: apdu, Err: err})
		return nil, err
	}

	idx := -1
	for i, entry := range m.script {
		if entry.Match == nil || bytes.Equal(entry.Match, apdu) {
			idx = i
			break
		}
	}
	if idx < 0 {
		err := fmt.Errorf("transport: no scripted response matches transmit % X", apdu)
		m.log = append(m.log, LoggedExchange{Sent: apdu, Err: err})
		return nil, err
	}
	entry := m.script[idx]
	m.script = append(m.script[:idx], m.script[idx+1:]...)

	if entry.Err != nil {
		m.log = append(m.log, LoggedExchange{Sent: apdu, Err: entry.Err})
		return nil, entry.Err
	}
	if len(entry.Response) < 2 {
		err := ErrResponseTooShort
		m.log = append(m.log, LoggedExchange{Sent: apdu, Err: err})
		return nil, err
	}
	m.log = append(m.log, LoggedExchange{Sent: apdu, Received: entry.Response})
	return entry.Response, nil
}

// Log returns every recorded exchange since creation, in order.
func (m *Mock) Log() []LoggedExchange {
	return m.log
}

// LastSent returns the APDU bytes of the most recent Transmit call, or
// nil if none has happened yet.
func (m *Mock) LastSent() []byte {
	if len(m.log) == 0 {
		return nil
	}
	return m.log[len(m.log)-1].Sent
}

// Remaining reports how many scripted responses are still queued.
func (m *Mock) Remaining() int {
	return len(m.script)
}

var _ Transport = (*Mock)(nil)
