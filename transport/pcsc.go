package transport

import (
	"fmt"

	"github.com/ebfe/scard"
)

// PCSC is a Transport backed by a real PC/SC reader via github.com/ebfe/scard.
type PCSC struct {
	ctx  *scard.Context
	card *scard.Card
	name string
}

// NewPCSC establishes a PC/SC context. The returned Transport is not yet
// connected to a reader — call Connect.
func NewPCSC() (*PCSC, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("transport: failed to establish PC/SC context: %w", err)
	}
	return &PCSC{ctx: ctx}, nil
}

// ListReaders returns the names of readers currently visible to PC/SC.
func (p *PCSC) ListReaders() ([]string, error) {
	readers, err := p.ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("transport: failed to list readers: %w", err)
	}
	return readers, nil
}

// Connect opens a shared-mode session against the named reader and
// leaves the protocol negotiation to the driver.
func (p *PCSC) Connect(reader string) error {
	card, err := p.ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return fmt.Errorf("transport: failed to connect to reader %q: %w", reader, err)
	}
	p.card = card
	p.name = reader
	return nil
}

// Transmit sends apdu to the connected card and returns the raw response.
func (p *PCSC) Transmit(apdu []byte) ([]byte, error) {
	if p.card == nil {
		return nil, ErrNotConnected
	}
	raw, err := p.card.Transmit(apdu)
	if err != nil {
		return nil, fmt.Errorf("transport: transmit failed: %w", err)
	}
	if len(raw) < 2 {
		return nil, ErrResponseTooShort
	}
	return raw, nil
}

// Close disconnects the card (leaving it powered) and releases the
// PC/SC context. Safe to call more than once.
func (p *PCSC) Close() error {
	if p.card != nil {
		p.card.Disconnect(scard.LeaveCard)
		p.card = nil
	}
	if p.ctx != nil {
		p.ctx.Release()
		p.ctx = nil
	}
	return nil
}

// ReaderName returns the name of the currently connected reader, or ""
// if not connected.
func (p *PCSC) ReaderName() string {
	return p.name
}

var _ Transport = (*PCSC)(nil)
