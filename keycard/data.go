package keycard

import (
	"keycard/apdu"
	"keycard/info"
	"keycard/keypath"
)

// GetStatus requests GET STATUS P1=0x00: the PIN/PUK retry counters and
// whether a key is loaded. Not a secure exchange.
func (s *Session) GetStatus() (info.ApplicationStatus, *Error) {
	if e := s.requireSelected(); e != nil {
		return info.ApplicationStatus{}, e
	}
	resp, rerr := s.transmit(0x80, 0xF2, 0x00, 0x00, nil)
	if rerr != nil {
		return info.ApplicationStatus{}, rerr
	}
	if resp.SW != apdu.SWSuccess {
		return info.ApplicationStatus{}, mapCommonSW(resp.SW)
	}
	status, err := info.ParseApplicationStatus(resp.Data)
	if err != nil {
		return info.ApplicationStatus{}, wrapError(ErrInvalidResponse, err)
	}
	return status, nil
}

// GetCurrentPath requests GET STATUS P1=0x01: the BIP32 path currently
// derived on the card (empty path at the master key).
func (s *Session) GetCurrentPath() (keypath.Path, *Error) {
	if e := s.requireSelected(); e != nil {
		return keypath.Path{}, e
	}
	resp, rerr := s.transmit(0x80, 0xF2, 0x01, 0x00, nil)
	if rerr != nil {
		return keypath.Path{}, rerr
	}
	if resp.SW != apdu.SWSuccess {
		return keypath.Path{}, mapCommonSW(resp.SW)
	}
	components, err := keypath.DecodeComponents(resp.Data)
	if err != nil {
		return keypath.Path{}, wrapError(ErrInvalidResponse, err)
	}
	return keypath.Path{Source: keypath.Current, Components: components}, nil
}

// DataRegion selects which STORE DATA / GET DATA region a call targets.
type DataRegion byte

const (
	DataPublic DataRegion = 0x00
	DataNDEF   DataRegion = 0x01
	DataCash   DataRegion = 0x02
)

// StoreData writes to a data region over the secure channel. The NDEF
// region additionally requires the NDEF capability.
func (s *Session) StoreData(region DataRegion, data []byte) *Error {
	if e := s.requireChannelOpen(); e != nil {
		return e
	}
	if region == DataNDEF {
		if e := s.requireCapability(info.CapNDEF); e != nil {
			return e
		}
	}
	result, err := s.channel.SendSecure(s.transport, 0x80, 0xE2, byte(region), 0x00, data)
	if err != nil {
		return wrapError(ErrInvalidMac, err)
	}
	if !result.IsOK() {
		return mapCommonSW(result.SW)
	}
	return nil
}

// GetData reads a data region. Unlike StoreData this is a public
// readout: it requires neither PIN verification nor an open secure
// channel.
func (s *Session) GetData(region DataRegion) ([]byte, *Error) {
	if e := s.requireSelected(); e != nil {
		return nil, e
	}
	if region == DataNDEF {
		if e := s.requireCapability(info.CapNDEF); e != nil {
			return nil, e
		}
	}
	resp, rerr := s.transmit(0x80, 0xCA, byte(region), 0x00, nil)
	if rerr != nil {
		return nil, rerr
	}
	if resp.SW != apdu.SWSuccess {
		return nil, mapCommonSW(resp.SW)
	}
	return resp.Data, nil
}

// FactoryReset wipes the card back to its pre-INIT state. Requires only
// a prior SELECT — no PIN, no secure channel.
func (s *Session) FactoryReset() *Error {
	if e := s.requireSelected(); e != nil {
		return e
	}
	resp, rerr := s.transmit(0x80, 0xFD, 0xAA, 0x55, nil)
	if rerr != nil {
		return rerr
	}
	if resp.SW != apdu.SWSuccess {
		return mapCommonSW(resp.SW)
	}
	s.selected = false
	s.info = info.ApplicationInfo{}
	s.channel.Close()
	return nil
}
