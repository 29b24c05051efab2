// Package tlv implements the BER-TLV encoding used on the ISO/IEC 7816-4
// wire: tag(1) || length(1-3) || value. Entities are kept as an ordered
// sequence rather than a map because duplicate tags are legal and
// meaningful in several Keycard responses (e.g. two 0x02 entries in the
// SELECT response, distinguished only by their length).
package tlv

import "fmt"

// Tag is a single tag/value pair, as found in a concatenation of
// tag‖length‖value items.
type Tag struct {
	Tag   byte
	Value []byte
}

// Tags is an ordered sequence of parsed tag/value pairs.
type Tags []Tag

// Parse decodes a concatenation of tag‖length‖value items. Length decoding
// follows ISO/IEC 7816-4: b < 0x80 is a single-byte length, 0x81 introduces
// one length byte, 0x82 introduces two big-endian length bytes. Any other
// long form is rejected. Parsing stops silently at the first malformed or
// truncated item and returns everything decoded so far — callers that
// require a specific tag must check its presence with Find/Has.
func Parse(data []byte) Tags {
	var out Tags
	i := 0
	for i < len(data) {
		tag := data[i]
		i++
		if i >= len(data) {
			break
		}
		length, consumed, ok := decodeLength(data[i:])
		if !ok {
			break
		}
		i += consumed
		if length < 0 || i+length > len(data) {
			break
		}
		value := make([]byte, length)
		copy(value, data[i:i+length])
		out = append(out, Tag{Tag: tag, Value: value})
		i += length
	}
	return out
}

// decodeLength reads a BER length field from the front of b. It returns
// the decoded length, the number of bytes consumed, and whether the field
// was well-formed.
func decodeLength(b []byte) (length int, consumed int, ok bool) {
	if len(b) == 0 {
		return 0, 0, false
	}
	first := b[0]
	switch {
	case first < 0x80:
		return int(first), 1, true
	case first == 0x81:
		if len(b) < 2 {
			return 0, 0, false
		}
		return int(b[1]), 2, true
	case first == 0x82:
		if len(b) < 3 {
			return 0, 0, false
		}
		return int(b[1])<<8 | int(b[2]), 3, true
	default:
		return 0, 0, false
	}
}

// Find returns the value of the first item matching tag, or nil if absent.
func (t Tags) Find(tag byte) []byte {
	for _, item := range t {
		if item.Tag == tag {
			return item.Value
		}
	}
	return nil
}

// FindAll returns the values of every item matching tag, in order.
func (t Tags) FindAll(tag byte) [][]byte {
	var out [][]byte
	for _, item := range t {
		if item.Tag == tag {
			out = append(out, item.Value)
		}
	}
	return out
}

// Has reports whether any item matches tag.
func (t Tags) Has(tag byte) bool {
	for _, item := range t {
		if item.Tag == tag {
			return true
		}
	}
	return false
}

// Encode emits tag‖length‖value for a single item, using the minimum-length
// form for the length field.
func Encode(tag byte, value []byte) []byte {
	out := make([]byte, 0, 2+len(value)+2)
	out = append(out, tag)
	out = append(out, EncodeLength(len(value))...)
	out = append(out, value...)
	return out
}

// EncodeLength returns the minimum-length BER encoding of length.
// Lengths <= 127 use the short form; 128..255 use 0x81 plus one byte;
// 256..65535 use 0x82 plus two big-endian bytes.
func EncodeLength(length int) []byte {
	switch {
	case length <= 0x7F:
		return []byte{byte(length)}
	case length <= 0xFF:
		return []byte{0x81, byte(length)}
	case length <= 0xFFFF:
		return []byte{0x82, byte(length >> 8), byte(length)}
	default:
		panic(fmt.Sprintf("tlv: length %d exceeds 65535", length))
	}
}

// EncodeAll concatenates Encode(tag, value) for every item, in order.
func EncodeAll(items Tags) []byte {
	var out []byte
	for _, item := range items {
		out = append(out, Encode(item.Tag, item.Value)...)
	}
	return out
}
