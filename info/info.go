// Package info holds the parsed representation of the applet's SELECT
// and GET STATUS responses: ApplicationInfo (instance identity, card
// public key, version, free pairing slots, loaded key identity,
// capability bitmask) and ApplicationStatus (PIN/PUK retry counters).
package info

import "keycard/tlv"

// Capability bits reported in the SELECT response.
const (
	CapSecureChannel uint8 = 1 << 0
	CapKeyManagement uint8 = 1 << 1
	CapCredentials   uint8 = 1 << 2
	CapNDEF          uint8 = 1 << 3
)

// SELECT response TLV tags.
const (
	tagPreInit          byte = 0x80
	tagApplicationInfo  byte = 0xA4
	tagInstanceUID      byte = 0x8F
	tagPublicKey        byte = 0x80
	tagVersionOrSlots   byte = 0x02
	tagKeyUID           byte = 0x8E
	tagCapabilities     byte = 0x8D
	preInitFreeSlots    byte = 0xFF
)

// ApplicationInfo is the parsed content of a SELECT response.
type ApplicationInfo struct {
	InstanceUID  []byte // 16 bytes, present iff the card is initialized
	PublicKey    []byte // 65-byte uncompressed secp256k1 point, always present
	VersionMajor byte
	VersionMinor byte
	FreeSlots    byte // 0-5, or 0xFF sentinel pre-init
	KeyUID       []byte // 0 or 32 bytes; empty when no key is loaded
	Capabilities uint8
}

// IsInitialized reports whether the card has completed INIT.
func (a ApplicationInfo) IsInitialized() bool {
	return len(a.InstanceUID) == 16
}

// HasCapability reports whether cap is set in the capability bitmask.
func (a ApplicationInfo) HasCapability(cap uint8) bool {
	return a.Capabilities&cap != 0
}

// HasKey reports whether a key is currently loaded on the card.
func (a ApplicationInfo) HasKey() bool {
	return len(a.KeyUID) == 32
}

// ParseSelectResponse parses the data field of a successful SELECT
// response. Two shapes are accepted, distinguished by the leading tag:
// 0x80 means the card is pre-initialization and only a public key is
// present; 0xA4 wraps a full TLV template of applet identity fields.
func ParseSelectResponse(data []byte) (ApplicationInfo, error) {
	items := tlv.Parse(data)
	if len(items) == 0 {
		return ApplicationInfo{}, errInvalidSelectResponse
	}

	switch items[0].Tag {
	case tagPreInit:
		return ApplicationInfo{
			PublicKey: items[0].Value,
			FreeSlots: preInitFreeSlots,
		}, nil

	case tagApplicationInfo:
		inner := tlv.Parse(items[0].Value)
		info := ApplicationInfo{
			InstanceUID: inner.Find(tagInstanceUID),
			PublicKey:   inner.Find(tagPublicKey),
			KeyUID:      inner.Find(tagKeyUID),
		}
		if caps := inner.Find(tagCapabilities); len(caps) == 1 {
			info.Capabilities = caps[0]
		}
		// Two 0x02 entries appear: a 2-byte version and a 1-byte free
		// slot count, distinguished only by value length.
		for _, candidate := range inner.FindAll(tagVersionOrSlots) {
			switch len(candidate) {
			case 2:
				info.VersionMajor, info.VersionMinor = candidate[0], candidate[1]
			case 1:
				info.FreeSlots = candidate[0]
			}
		}
		return info, nil

	default:
		return ApplicationInfo{}, errInvalidSelectResponse
	}
}

// ApplicationStatus is the parsed content of a GET STATUS P1=0x00
// response.
type ApplicationStatus struct {
	PINRetryCount int
	PUKRetryCount int
	KeyInitialized bool
}

const (
	tagApplicationStatus byte = 0xA3
	tagPINRetries        byte = 0x02
	tagKeyInitFlag       byte = 0x01
)

const keyInitializedValue = 0xFF

// ParseApplicationStatus parses the data field of a GET STATUS P1=0x00
// response: 0xA3 { 0x02 pinRetries, 0x02 pukRetries, 0x01 keyInitialized }.
func ParseApplicationStatus(data []byte) (ApplicationStatus, error) {
	items := tlv.Parse(data)
	if len(items) == 0 || items[0].Tag != tagApplicationStatus {
		return ApplicationStatus{}, errInvalidStatusResponse
	}
	inner := tlv.Parse(items[0].Value)
	fields := inner.FindAll(tagPINRetries)
	if len(fields) < 2 {
		return ApplicationStatus{}, errInvalidStatusResponse
	}
	initFlag := inner.Find(tagKeyInitFlag)

	status := ApplicationStatus{}
	if len(fields[0]) == 1 {
		status.PINRetryCount = int(fields[0][0])
	}
	if len(fields[1]) == 1 {
		status.PUKRetryCount = int(fields[1][0])
	}
	if len(initFlag) == 1 {
		status.KeyInitialized = initFlag[0] == keyInitializedValue
	}
	return status, nil
}
