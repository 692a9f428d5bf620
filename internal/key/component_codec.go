package key

import (
	"encoding/binary"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	icyerrors "github.com/icydb/icydb/errors"
)

// Sign markers used by the composite/ordered component encoding, chosen so
// that byte-lexicographic order reproduces numeric order across sign:
// NEGATIVE_MARKER < ZERO_MARKER < POSITIVE_MARKER.
const (
	negativeMarker byte = 0x00
	zeroMarker     byte = 0x01
	positiveMarker byte = 0x02
)

// componentTag identifies a Value variant inside one length-prefixed index
// key component (spec.md §4.1).
type componentTag byte

const (
	ctUnit componentTag = iota
	ctBool
	ctUint
	ctInt
	ctText
	ctBlob
	ctUlid
	ctPrincipal
	ctSubaccount
	ctAccount
	ctTimestamp
	ctDecimal
	ctBigInt
	ctInt128
	ctUint128
	ctList
	ctSet
	ctMap
)

// EncodeOrderedComponent encodes a single Value as an order-preserving,
// self-describing byte string suitable for concatenation inside a composite
// index key. Unlike EncodeScalarKey this is variable-length: Decimal and
// BigInt components carry unbounded magnitudes, so their encoding uses an
// explicit sign bucket plus length-prefixed digits rather than a fixed width.
func EncodeOrderedComponent(v Value) ([]byte, error) {
	switch v.Kind {
	case KindUnit:
		return []byte{byte(ctUnit)}, nil
	case KindBool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		return []byte{byte(ctBool), b}, nil
	case KindUint:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], v.Uint)
		return append([]byte{byte(ctUint)}, buf[:]...), nil
	case KindInt:
		buf := signFlippedInt64(v.Int)
		return append([]byte{byte(ctInt)}, buf[:]...), nil
	case KindTimestamp:
		buf := signFlippedInt64(v.Int)
		return append([]byte{byte(ctTimestamp)}, buf[:]...), nil
	case KindText:
		// Raw UTF-8 bytes already compare in codepoint order for the
		// common case; no further transform is required.
		return append([]byte{byte(ctText)}, []byte(v.Text)...), nil
	case KindBlob:
		return append([]byte{byte(ctBlob)}, v.Bytes...), nil
	case KindUlid:
		return append([]byte{byte(ctUlid)}, v.Bytes...), nil
	case KindPrincipal:
		return append([]byte{byte(ctPrincipal)}, v.Bytes...), nil
	case KindSubaccount:
		return append([]byte{byte(ctSubaccount)}, v.Bytes...), nil
	case KindAccount:
		return append([]byte{byte(ctAccount)}, v.Bytes...), nil
	case KindDecimal:
		return encodeDecimalComponent(v)
	case KindBigInt:
		return encodeBigIntComponent(ctBigInt, v.BigInt)
	case KindInt128:
		return encodeBigIntComponent(ctInt128, v.Int128)
	case KindUint128:
		if v.Uint128 == nil {
			return nil, icyerrors.StoreCorruption("uint128 component is nil")
		}
		bs := v.Uint128.Bytes32()
		return append([]byte{byte(ctUint128)}, bs[:]...), nil
	case KindList:
		return encodeElements(ctList, v.List)
	case KindSet:
		return encodeElements(ctSet, v.List)
	case KindMap:
		return encodeMap(v.Entries)
	default:
		return nil, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginIndex,
			"kind %s cannot be encoded as an ordered index component", v.Kind)
	}
}

// encodeBigIntComponent encodes an arbitrary-precision signed integer as
// sign_marker || digit_count(u32 BE) || ascii_digits, with both the
// digit-count prefix and the digit bytes bitwise-inverted when the value is
// negative so that more-negative values sort before less-negative ones
// (inverting the prefix puts longer magnitudes first; inverting the digits
// reverses the digit-by-digit order within equal-length magnitudes).
func encodeBigIntComponent(tag componentTag, v *big.Int) ([]byte, error) {
	if v == nil {
		return nil, icyerrors.StoreCorruption("big int component is nil")
	}
	out := []byte{byte(tag)}

	sign := v.Sign()
	switch {
	case sign == 0:
		out = append(out, zeroMarker)
		return out, nil
	case sign > 0:
		out = append(out, positiveMarker)
	default:
		out = append(out, negativeMarker)
	}

	digits := []byte(new(big.Int).Abs(v).String())
	// Longer magnitude must sort after shorter magnitude among positives,
	// and before among negatives; a length prefix makes magnitude
	// comparison length-first regardless of digit count.
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(digits)))

	if sign < 0 {
		for i := range lenBuf {
			lenBuf[i] = ^lenBuf[i]
		}
		for i := range digits {
			digits[i] = ^digits[i]
		}
	}

	out = append(out, lenBuf[:]...)
	out = append(out, digits...)
	return out, nil
}

func decodeBigIntComponent(payload []byte) (*big.Int, int, error) {
	if len(payload) < 1 {
		return nil, 0, icyerrors.StoreCorruption("big int component missing sign marker")
	}
	marker := payload[0]
	switch marker {
	case zeroMarker:
		return big.NewInt(0), 1, nil
	case positiveMarker, negativeMarker:
		if len(payload) < 5 {
			return nil, 0, icyerrors.StoreCorruption("big int component missing length prefix")
		}
		lenBuf := [4]byte{payload[1], payload[2], payload[3], payload[4]}
		negative := marker == negativeMarker
		if negative {
			for i := range lenBuf {
				lenBuf[i] = ^lenBuf[i]
			}
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		end := 5 + int(n)
		if len(payload) < end {
			return nil, 0, icyerrors.StoreCorruption("big int component digit buffer truncated")
		}
		digits := make([]byte, n)
		copy(digits, payload[5:end])
		if negative {
			for i := range digits {
				digits[i] = ^digits[i]
			}
		}
		mag, ok := new(big.Int).SetString(string(digits), 10)
		if !ok {
			return nil, 0, icyerrors.StoreCorruption("big int component digits are not valid decimal ASCII")
		}
		if negative {
			mag.Neg(mag)
		}
		return mag, end, nil
	default:
		return nil, 0, icyerrors.StoreCorruptionf("big int component has unknown sign marker %d", marker)
	}
}

// decimalParts splits a decimal's canonical string form into sign, a digit
// string with the decimal point removed, and the implied base-10 exponent of
// the least significant digit (so value == (-1)^sign * digits * 10^exp).
func decimalParts(d decimal.Decimal) (negative bool, digits string, exp int32) {
	s := d.String()
	if len(s) > 0 && s[0] == '-' {
		negative = true
		s = s[1:]
	}
	dot := -1
	for i, c := range s {
		if c == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return negative, s, 0
	}
	intPart := s[:dot]
	fracPart := s[dot+1:]
	return negative, intPart + fracPart, -int32(len(fracPart))
}

// encodeDecimalComponent normalizes d (stripping trailing fractional zeros),
// then encodes sign_marker || ordered_exponent(i32) || digit_count(u32) ||
// digits, inverting digits and exponent on negative values the same way
// encodeBigIntComponent does for its magnitude.
func encodeDecimalComponent(v Value) ([]byte, error) {
	d := v.Decimal

	out := []byte{byte(ctDecimal)}

	if d.IsZero() {
		out = append(out, zeroMarker)
		return out, nil
	}

	negative, digits, exp := decimalParts(d)
	sign := 1
	if negative {
		sign = -1
	}

	// Strip trailing zero digits, folding them into the exponent, so two
	// representations of the same value (e.g. 1.10 vs 1.1) encode identically.
	for len(digits) > 1 && digits[len(digits)-1] == '0' {
		digits = digits[:len(digits)-1]
		exp++
	}
	// Leading zeros are not stripped: a value below one keeps the integer
	// part's "0" (0.045 gives digits "0045" with exponent -3).

	if sign > 0 {
		out = append(out, positiveMarker)
	} else {
		out = append(out, negativeMarker)
	}

	var expBuf [4]byte
	binary.BigEndian.PutUint32(expBuf[:], uint32(exp)^(1<<31))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(digits)))
	digitBytes := []byte(digits)

	if sign < 0 {
		for i := range expBuf {
			expBuf[i] = ^expBuf[i]
		}
		for i := range lenBuf {
			lenBuf[i] = ^lenBuf[i]
		}
		for i := range digitBytes {
			digitBytes[i] = ^digitBytes[i]
		}
	}

	out = append(out, expBuf[:]...)
	out = append(out, lenBuf[:]...)
	out = append(out, digitBytes...)
	return out, nil
}

func decodeDecimalComponent(payload []byte) (Value, int, error) {
	if len(payload) < 1 {
		return Value{}, 0, icyerrors.StoreCorruption("decimal component missing sign marker")
	}
	marker := payload[0]
	if marker == zeroMarker {
		return DecimalValue(decimal.Zero), 1, nil
	}
	if marker != positiveMarker && marker != negativeMarker {
		return Value{}, 0, icyerrors.StoreCorruptionf("decimal component has unknown sign marker %d", marker)
	}
	if len(payload) < 9 {
		return Value{}, 0, icyerrors.StoreCorruption("decimal component missing exponent/length prefix")
	}
	negative := marker == negativeMarker
	expBuf := [4]byte{payload[1], payload[2], payload[3], payload[4]}
	lenBuf := [4]byte{payload[5], payload[6], payload[7], payload[8]}
	if negative {
		for i := range expBuf {
			expBuf[i] = ^expBuf[i]
		}
		for i := range lenBuf {
			lenBuf[i] = ^lenBuf[i]
		}
	}
	exp := int32(binary.BigEndian.Uint32(expBuf[:]) ^ (1 << 31))
	n := binary.BigEndian.Uint32(lenBuf[:])
	end := 9 + int(n)
	if len(payload) < end {
		return Value{}, 0, icyerrors.StoreCorruption("decimal component digit buffer truncated")
	}
	digits := make([]byte, n)
	copy(digits, payload[9:end])
	if negative {
		for i := range digits {
			digits[i] = ^digits[i]
		}
	}
	mag, ok := new(big.Int).SetString(string(digits), 10)
	if !ok {
		return Value{}, 0, icyerrors.StoreCorruption("decimal component digits are not valid decimal ASCII")
	}
	if negative {
		mag.Neg(mag)
	}
	return DecimalValue(decimal.NewFromBigInt(mag, exp)), end, nil
}

// encodeElements encodes a List/Set as tag || count(u32 BE) || length-
// prefixed element bytes*. Unlike index-key components, collection
// elements are never compared byte-for-byte against each other at this
// layer, so an explicit length prefix per element is safe and simplest.
func encodeElements(tag componentTag, elements []Value) ([]byte, error) {
	out := []byte{byte(tag)}
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(elements)))
	out = append(out, countBuf[:]...)
	for i, el := range elements {
		b, err := EncodeOrderedComponent(el)
		if err != nil {
			return nil, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginIndex,
				"collection element %d: %v", i, err)
		}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
		out = append(out, lenBuf[:]...)
		out = append(out, b...)
	}
	return out, nil
}

func decodeElements(payload []byte) ([]Value, int, error) {
	if len(payload) < 4 {
		return nil, 0, icyerrors.StoreCorruption("collection component missing count prefix")
	}
	count := binary.BigEndian.Uint32(payload[:4])
	rest := payload[4:]
	consumed := 4
	elements := make([]Value, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(rest) < 4 {
			return nil, 0, icyerrors.StoreCorruptionf("collection element %d missing length prefix", i)
		}
		n := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		consumed += 4
		if uint32(len(rest)) < n {
			return nil, 0, icyerrors.StoreCorruptionf("collection element %d truncated", i)
		}
		el, used, err := DecodeOrderedComponent(rest[:n])
		if err != nil {
			return nil, 0, icyerrors.StoreCorruptionf("collection element %d: %v", i, err)
		}
		if used != int(n) {
			return nil, 0, icyerrors.StoreCorruptionf("collection element %d decoded %d of %d bytes", i, used, n)
		}
		elements = append(elements, el)
		rest = rest[n:]
		consumed += int(n)
	}
	return elements, consumed, nil
}

// encodeMap encodes a Map as tag || count(u32 BE) || (length-prefixed key ||
// length-prefixed value)*.
func encodeMap(entries []MapEntry) ([]byte, error) {
	out := []byte{byte(ctMap)}
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(entries)))
	out = append(out, countBuf[:]...)
	for i, e := range entries {
		kb, err := EncodeOrderedComponent(e.Key)
		if err != nil {
			return nil, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginIndex, "map entry %d key: %v", i, err)
		}
		vb, err := EncodeOrderedComponent(e.Value)
		if err != nil {
			return nil, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginIndex, "map entry %d value: %v", i, err)
		}
		var kLen, vLen [4]byte
		binary.BigEndian.PutUint32(kLen[:], uint32(len(kb)))
		binary.BigEndian.PutUint32(vLen[:], uint32(len(vb)))
		out = append(out, kLen[:]...)
		out = append(out, kb...)
		out = append(out, vLen[:]...)
		out = append(out, vb...)
	}
	return out, nil
}

func decodeMap(payload []byte) ([]MapEntry, int, error) {
	if len(payload) < 4 {
		return nil, 0, icyerrors.StoreCorruption("map component missing count prefix")
	}
	count := binary.BigEndian.Uint32(payload[:4])
	rest := payload[4:]
	consumed := 4
	entries := make([]MapEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		k, used, err := decodeLengthPrefixed(rest, "map entry key", i)
		if err != nil {
			return nil, 0, err
		}
		rest = rest[used:]
		consumed += used

		v, used2, err := decodeLengthPrefixed(rest, "map entry value", i)
		if err != nil {
			return nil, 0, err
		}
		rest = rest[used2:]
		consumed += used2

		entries = append(entries, MapEntry{Key: k, Value: v})
	}
	return entries, consumed, nil
}

func decodeLengthPrefixed(payload []byte, what string, index uint32) (Value, int, error) {
	if len(payload) < 4 {
		return Value{}, 0, icyerrors.StoreCorruptionf("%s %d missing length prefix", what, index)
	}
	n := binary.BigEndian.Uint32(payload[:4])
	payload = payload[4:]
	if uint32(len(payload)) < n {
		return Value{}, 0, icyerrors.StoreCorruptionf("%s %d truncated", what, index)
	}
	v, used, err := DecodeOrderedComponent(payload[:n])
	if err != nil {
		return Value{}, 0, icyerrors.StoreCorruptionf("%s %d: %v", what, index, err)
	}
	if used != int(n) {
		return Value{}, 0, icyerrors.StoreCorruptionf("%s %d decoded %d of %d bytes", what, index, used, n)
	}
	return v, 4 + int(n), nil
}

// DecodeOrderedComponent reverses EncodeOrderedComponent, returning the
// decoded Value and the number of payload bytes consumed (callers frame
// components with an outer length prefix; this return value lets a caller
// validate a length-prefixed component decodes to exactly its declared size).
func DecodeOrderedComponent(b []byte) (Value, int, error) {
	if len(b) == 0 {
		return Value{}, 0, icyerrors.StoreCorruption("ordered component is empty")
	}
	tag := componentTag(b[0])
	payload := b[1:]

	switch tag {
	case ctUnit:
		return Unit(), 1, nil
	case ctBool:
		if len(payload) < 1 {
			return Value{}, 0, icyerrors.StoreCorruption("bool component truncated")
		}
		if payload[0] > 1 {
			return Value{}, 0, icyerrors.StoreCorruptionf("bool component byte %d is not 0/1", payload[0])
		}
		return Bool(payload[0] == 1), 2, nil
	case ctUint:
		if len(payload) < 8 {
			return Value{}, 0, icyerrors.StoreCorruption("uint component truncated")
		}
		return Uint(binary.BigEndian.Uint64(payload[:8])), 9, nil
	case ctInt:
		if len(payload) < 8 {
			return Value{}, 0, icyerrors.StoreCorruption("int component truncated")
		}
		return Int(unflipInt64(payload[:8])), 9, nil
	case ctTimestamp:
		if len(payload) < 8 {
			return Value{}, 0, icyerrors.StoreCorruption("timestamp component truncated")
		}
		return Timestamp(unflipInt64(payload[:8])), 9, nil
	case ctText:
		return Text(string(payload)), len(b), nil
	case ctBlob:
		bs := make([]byte, len(payload))
		copy(bs, payload)
		return Blob(bs), len(b), nil
	case ctUlid:
		if len(payload) < widthUlid {
			return Value{}, 0, icyerrors.StoreCorruption("ulid component truncated")
		}
		bs := make([]byte, widthUlid)
		copy(bs, payload[:widthUlid])
		return Value{Kind: KindUlid, Bytes: bs}, 1 + widthUlid, nil
	case ctPrincipal:
		if len(payload) < widthPrincipal {
			return Value{}, 0, icyerrors.StoreCorruption("principal component truncated")
		}
		bs := make([]byte, widthPrincipal)
		copy(bs, payload[:widthPrincipal])
		return Value{Kind: KindPrincipal, Bytes: bs}, 1 + widthPrincipal, nil
	case ctSubaccount:
		if len(payload) < widthSubaccount {
			return Value{}, 0, icyerrors.StoreCorruption("subaccount component truncated")
		}
		bs := make([]byte, widthSubaccount)
		copy(bs, payload[:widthSubaccount])
		return Value{Kind: KindSubaccount, Bytes: bs}, 1 + widthSubaccount, nil
	case ctAccount:
		if len(payload) < widthAccount {
			return Value{}, 0, icyerrors.StoreCorruption("account component truncated")
		}
		bs := make([]byte, widthAccount)
		copy(bs, payload[:widthAccount])
		return Value{Kind: KindAccount, Bytes: bs}, 1 + widthAccount, nil
	case ctDecimal:
		v, n, err := decodeDecimalComponent(payload)
		if err != nil {
			return Value{}, 0, err
		}
		return v, 1 + n, nil
	case ctBigInt:
		v, n, err := decodeBigIntComponent(payload)
		if err != nil {
			return Value{}, 0, err
		}
		return BigInt(v), 1 + n, nil
	case ctInt128:
		v, n, err := decodeBigIntComponent(payload)
		if err != nil {
			return Value{}, 0, err
		}
		return Int128(v), 1 + n, nil
	case ctUint128:
		if len(payload) < 32 {
			return Value{}, 0, icyerrors.StoreCorruption("uint128 component truncated")
		}
		var arr [32]byte
		copy(arr[:], payload[:32])
		return Uint128(new(uint256.Int).SetBytes32(arr[:])), 1 + 32, nil
	case ctList:
		elements, n, err := decodeElements(payload)
		if err != nil {
			return Value{}, 0, err
		}
		return List(elements), 1 + n, nil
	case ctSet:
		elements, n, err := decodeElements(payload)
		if err != nil {
			return Value{}, 0, err
		}
		return Set(elements), 1 + n, nil
	case ctMap:
		entries, n, err := decodeMap(payload)
		if err != nil {
			return Value{}, 0, err
		}
		return Map(entries), 1 + n, nil
	default:
		return Value{}, 0, icyerrors.StoreCorruptionf("ordered component has unknown tag %d", tag)
	}
}
