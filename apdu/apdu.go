// Package apdu builds and parses ISO/IEC 7816-4 command/response APDUs.
// It mirrors the wire format a PC/SC transport sends and receives, and
// maps status words to their common meaning — but performs no I/O itself.
package apdu

import "fmt"

// Command is a C-APDU in short form: CLA/INS/P1/P2 plus an optional data
// field of at most 255 bytes.
type Command struct {
	Cla  byte
	Ins  byte
	P1   byte
	P2   byte
	Data []byte
}

// NewCommand builds a Command from exactly the fields it is given; it does
// not replace a zero Cla with 0x80 — that defaulting is the caller's job.
func NewCommand(cla, ins, p1, p2 byte, data []byte) Command {
	return Command{Cla: cla, Ins: ins, P1: p1, P2: p2, Data: data}
}

// Bytes serializes the command using the short APDU form:
// CLA INS P1 P2 [LC DATA]. Payloads over 255 bytes are rejected — the
// protocol this client speaks never needs extended length.
func (c Command) Bytes() ([]byte, error) {
	if len(c.Data) > 255 {
		return nil, fmt.Errorf("apdu: data length %d exceeds short-APDU maximum of 255", len(c.Data))
	}
	out := make([]byte, 4, 5+len(c.Data))
	out[0], out[1], out[2], out[3] = c.Cla, c.Ins, c.P1, c.P2
	if len(c.Data) > 0 {
		out = append(out, byte(len(c.Data)))
		out = append(out, c.Data...)
	}
	return out, nil
}

// Response is an R-APDU: response data plus the trailing two-byte SW.
type Response struct {
	Data []byte
	SW   uint16
}

// ParseResponse splits the last two bytes of raw as the status word and
// treats everything before them as response data. It fails if raw is
// shorter than two bytes.
func ParseResponse(raw []byte) (Response, error) {
	if len(raw) < 2 {
		return Response{}, fmt.Errorf("apdu: response too short (%d bytes)", len(raw))
	}
	n := len(raw)
	return Response{
		Data: raw[:n-2],
		SW:   uint16(raw[n-2])<<8 | uint16(raw[n-1]),
	}, nil
}

// IsOK reports whether SW is the success word 0x9000.
func (r Response) IsOK() bool {
	return r.SW == SWSuccess
}

// Common status words shared across the command set (spec §4.6 table).
const (
	SWSuccess                 uint16 = 0x9000
	SWSecurityNotSatisfied    uint16 = 0x6982 // secure channel aborted / security status not satisfied
	SWConditionsNotSatisfied  uint16 = 0x6985
	SWWrongData               uint16 = 0x6A80
	SWFuncNotSupported        uint16 = 0x6A81
	SWNotEnoughMemory         uint16 = 0x6A84
	SWWrongP1P2               uint16 = 0x6A86
	SWReferencedDataNotFound  uint16 = 0x6A88
	SWInsNotSupportedOrInited uint16 = 0x6D00
)

// IsVerifyFailure reports whether sw is one of the 0x63Cn "verification
// failed" family and, if so, returns the retries-remaining nibble.
func IsVerifyFailure(sw uint16) (retries int, ok bool) {
	if sw&0xFFF0 == 0x63C0 {
		return int(sw & 0x000F), true
	}
	return 0, false
}

// String renders sw using the common table, falling back to a generic
// label for anything not listed there.
func String(sw uint16) string {
	switch sw {
	case SWSuccess:
		return "Success"
	case SWSecurityNotSatisfied:
		return "Security status not satisfied"
	case SWConditionsNotSatisfied:
		return "Conditions of use not satisfied"
	case SWWrongData:
		return "Wrong data"
	case SWFuncNotSupported:
		return "Function not supported"
	case SWNotEnoughMemory:
		return "Not enough memory"
	case SWWrongP1P2:
		return "Incorrect P1/P2"
	case SWReferencedDataNotFound:
		return "Referenced data not found"
	case SWInsNotSupportedOrInited:
		return "Instruction not supported / already initialized"
	}
	if retries, ok := IsVerifyFailure(sw); ok {
		if retries == 0 {
			return "Verification blocked"
		}
		return fmt.Sprintf("Verification failed, %d attempt(s) remaining", retries)
	}
	return fmt.Sprintf("Unknown status word %04X", sw)
}
