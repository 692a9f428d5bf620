package key

import (
	"encoding/binary"

	icyerrors "github.com/icydb/icydb/errors"
)

// scalarTag identifies a Key variant inside the fixed-width scalar encoding.
// Values are stable wire constants; never renumber an existing tag.
type scalarTag byte

const (
	tagUnit scalarTag = iota
	tagBool
	tagInt
	tagUint
	tagUlid
	tagPrincipal
	tagSubaccount
	tagAccount
	tagTimestamp
)

// Fixed payload widths per tag (spec.md §4.1: "fixed-length byte sequence
// with tag byte, payload, zero padding"). Each tag's payload has exactly one
// valid width; any other length is corruption, not a short/long variant.
const (
	widthUnit       = 0
	widthBool       = 1
	widthInt        = 8
	widthUint       = 8
	widthUlid       = 16
	widthPrincipal  = 16
	widthSubaccount = 32
	widthAccount    = widthPrincipal + widthSubaccount
	widthTimestamp  = 8
)

func payloadWidth(tag scalarTag) (int, bool) {
	switch tag {
	case tagUnit:
		return widthUnit, true
	case tagBool:
		return widthBool, true
	case tagInt:
		return widthInt, true
	case tagUint:
		return widthUint, true
	case tagUlid:
		return widthUlid, true
	case tagPrincipal:
		return widthPrincipal, true
	case tagSubaccount:
		return widthSubaccount, true
	case tagAccount:
		return widthAccount, true
	case tagTimestamp:
		return widthTimestamp, true
	default:
		return 0, false
	}
}

func kindToTag(k Kind) (scalarTag, bool) {
	switch k {
	case KindUnit:
		return tagUnit, true
	case KindBool:
		return tagBool, true
	case KindInt:
		return tagInt, true
	case KindUint:
		return tagUint, true
	case KindUlid:
		return tagUlid, true
	case KindPrincipal:
		return tagPrincipal, true
	case KindSubaccount:
		return tagSubaccount, true
	case KindAccount:
		return tagAccount, true
	case KindTimestamp:
		return tagTimestamp, true
	default:
		return 0, false
	}
}

// signFlippedInt64 XORs the sign bit of a big-endian two's-complement int64
// so that byte-lexicographic order matches numeric order across the full
// signed range (the standard order-preserving integer encoding trick).
func signFlippedInt64(v int64) [8]byte {
	u := uint64(v) ^ (1 << 63)
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], u)
	return out
}

func unflipInt64(b []byte) int64 {
	u := binary.BigEndian.Uint64(b)
	return int64(u ^ (1 << 63))
}

// EncodeScalarKey produces the fixed-width, order-preserving byte encoding of
// a keyable Value: one tag byte followed by that tag's canonical payload.
// Encoding a non-keyable Kind is a programmer error (InvariantViolation).
func EncodeScalarKey(v Value) ([]byte, error) {
	tag, ok := kindToTag(v.Kind)
	if !ok {
		return nil, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginIndex,
			"kind %s cannot be encoded as a scalar key", v.Kind)
	}

	out := make([]byte, 1, 1+widthAccount)
	out[0] = byte(tag)

	switch tag {
	case tagUnit:
		// no payload
	case tagBool:
		var b byte
		if v.Bool {
			b = 1
		}
		out = append(out, b)
	case tagInt:
		buf := signFlippedInt64(v.Int)
		out = append(out, buf[:]...)
	case tagUint:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], v.Uint)
		out = append(out, buf[:]...)
	case tagUlid:
		if len(v.Bytes) != widthUlid {
			return nil, icyerrors.StoreCorruptionf("ulid key value has %d bytes, want %d", len(v.Bytes), widthUlid)
		}
		out = append(out, v.Bytes...)
	case tagPrincipal:
		if len(v.Bytes) != widthPrincipal {
			return nil, icyerrors.StoreCorruptionf("principal key value has %d bytes, want %d", len(v.Bytes), widthPrincipal)
		}
		out = append(out, v.Bytes...)
	case tagSubaccount:
		padded := make([]byte, widthSubaccount)
		if len(v.Bytes) > widthSubaccount {
			return nil, icyerrors.StoreCorruptionf("subaccount key value has %d bytes, want at most %d", len(v.Bytes), widthSubaccount)
		}
		copy(padded[widthSubaccount-len(v.Bytes):], v.Bytes)
		out = append(out, padded...)
	case tagAccount:
		if len(v.Bytes) != widthAccount {
			return nil, icyerrors.StoreCorruptionf("account key value has %d bytes, want %d", len(v.Bytes), widthAccount)
		}
		out = append(out, v.Bytes...)
	case tagTimestamp:
		buf := signFlippedInt64(v.Int)
		out = append(out, buf[:]...)
	}
	return out, nil
}

// DecodeScalarKey reverses EncodeScalarKey, rejecting unknown tags, wrong
// lengths, and (where applicable) non-canonical zero padding.
func DecodeScalarKey(b []byte) (Value, error) {
	if len(b) == 0 {
		return Value{}, icyerrors.StoreCorruption("scalar key is empty")
	}
	tag := scalarTag(b[0])
	width, ok := payloadWidth(tag)
	if !ok {
		return Value{}, icyerrors.StoreCorruptionf("scalar key has unknown tag %d", b[0])
	}
	payload := b[1:]
	if len(payload) != width {
		return Value{}, icyerrors.StoreCorruptionf("scalar key tag %d has payload length %d, want %d", tag, len(payload), width)
	}

	switch tag {
	case tagUnit:
		return Unit(), nil
	case tagBool:
		if payload[0] > 1 {
			return Value{}, icyerrors.StoreCorruptionf("bool key payload byte %d is not 0/1", payload[0])
		}
		return Bool(payload[0] == 1), nil
	case tagInt:
		return Int(unflipInt64(payload)), nil
	case tagUint:
		return Uint(binary.BigEndian.Uint64(payload)), nil
	case tagUlid:
		bs := make([]byte, widthUlid)
		copy(bs, payload)
		return Value{Kind: KindUlid, Bytes: bs}, nil
	case tagPrincipal:
		bs := make([]byte, widthPrincipal)
		copy(bs, payload)
		return Value{Kind: KindPrincipal, Bytes: bs}, nil
	case tagSubaccount:
		bs := make([]byte, widthSubaccount)
		copy(bs, payload)
		return Value{Kind: KindSubaccount, Bytes: bs}, nil
	case tagAccount:
		bs := make([]byte, widthAccount)
		copy(bs, payload)
		return Value{Kind: KindAccount, Bytes: bs}, nil
	case tagTimestamp:
		return Timestamp(unflipInt64(payload)), nil
	}
	return Value{}, icyerrors.StoreCorruptionf("scalar key tag %d not handled", tag)
}
