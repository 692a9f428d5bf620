package key

import (
	"bytes"
	"encoding/binary"

	icyerrors "github.com/icydb/icydb/errors"
)

// IndexKeyKind tags which logical index layout produced a RawIndexKey.
type IndexKeyKind byte

const (
	IndexKeyUnique IndexKeyKind = iota
	IndexKeyMulti
)

// RawIndexKey is the manually-framed byte layout backing every secondary
// index entry (spec.md §4.1). Its Ord is required to equal
// (kind, index_id, arity, component_1, ..., component_n, primary_key) in
// lexicographic order; every field below is encoded so plain byte comparison
// of the whole framed key reproduces exactly that order:
//   - kind, index_id and arity are fixed-width big-endian integers, so their
//     byte order already matches numeric order;
//   - each component is encoded with EncodeOrderedComponent, which is itself
//     self-delimiting (no external length prefix needed to decode it) and
//     order-preserving for values of the same field kind;
//   - the trailing primary key uses EncodeScalarKey, fixed-width per tag,
//     serving purely as the final tie-break among otherwise-equal rows.
type RawIndexKey struct {
	Kind       IndexKeyKind
	IndexID    uint32
	Components []Value
	PrimaryKey Value
}

// Encode renders the framed byte layout described in the RawIndexKey doc.
func (k RawIndexKey) Encode() ([]byte, error) {
	var out bytes.Buffer
	out.WriteByte(byte(k.Kind))

	var idBuf [4]byte
	binary.BigEndian.PutUint32(idBuf[:], k.IndexID)
	out.Write(idBuf[:])

	var arityBuf [4]byte
	binary.BigEndian.PutUint32(arityBuf[:], uint32(len(k.Components)))
	out.Write(arityBuf[:])

	for i, c := range k.Components {
		b, err := EncodeOrderedComponent(c)
		if err != nil {
			return nil, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginIndex,
				"index key component %d: %v", i, err)
		}
		out.Write(b)
	}

	pkBytes, err := EncodeScalarKey(k.PrimaryKey)
	if err != nil {
		return nil, err
	}
	out.Write(pkBytes)

	return out.Bytes(), nil
}

// DecodeRawIndexKey reverses Encode.
func DecodeRawIndexKey(b []byte) (RawIndexKey, error) {
	if len(b) < 9 {
		return RawIndexKey{}, icyerrors.StoreCorruption("raw index key shorter than its fixed header")
	}
	kind := IndexKeyKind(b[0])
	if kind != IndexKeyUnique && kind != IndexKeyMulti {
		return RawIndexKey{}, icyerrors.StoreCorruptionf("raw index key has unknown kind tag %d", b[0])
	}
	indexID := binary.BigEndian.Uint32(b[1:5])
	arity := binary.BigEndian.Uint32(b[5:9])
	rest := b[9:]

	components := make([]Value, 0, arity)
	for i := uint32(0); i < arity; i++ {
		v, n, err := DecodeOrderedComponent(rest)
		if err != nil {
			return RawIndexKey{}, icyerrors.StoreCorruptionf("raw index key component %d: %v", i, err)
		}
		if n > len(rest) {
			return RawIndexKey{}, icyerrors.StoreCorruption("raw index key component overruns buffer")
		}
		components = append(components, v)
		rest = rest[n:]
	}

	pk, err := DecodeScalarKey(rest)
	if err != nil {
		return RawIndexKey{}, icyerrors.StoreCorruptionf("raw index key primary key: %v", err)
	}

	return RawIndexKey{Kind: kind, IndexID: indexID, Components: components, PrimaryKey: pk}, nil
}

// Less reports whether a sorts strictly before b under the required
// (kind, index_id, arity, component_i*, pk) order. Implemented by comparing
// the encoded byte strings, which is the cheapest correct definition given
// Encode's ordering guarantee.
func Less(a, b RawIndexKey) (bool, error) {
	ab, err := a.Encode()
	if err != nil {
		return false, err
	}
	bb, err := b.Encode()
	if err != nil {
		return false, err
	}
	return bytes.Compare(ab, bb) < 0, nil
}

// RawIndexEntry is the value stored at one RawIndexKey prefix bucket:
// count(u32 BE) || key*, where each key is a RawDataKey-equivalent scalar
// key referencing a primary row. Unique indexes must decode to exactly one
// key; duplicate keys within one entry are always forbidden (spec.md §4.1).
type RawIndexEntry struct {
	Keys []Value
}

// Encode renders count(u32 BE) followed by each key's scalar encoding.
func (e RawIndexEntry) Encode() ([]byte, error) {
	var out bytes.Buffer
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(e.Keys)))
	out.Write(countBuf[:])
	for i, k := range e.Keys {
		b, err := EncodeScalarKey(k)
		if err != nil {
			return nil, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginIndex,
				"index entry key %d: %v", i, err)
		}
		out.Write(b)
	}
	return out.Bytes(), nil
}

// DecodeRawIndexEntry reverses Encode, rejecting duplicate keys within the
// entry (spec.md §4.1: duplicates are always corruption, never deduplicated
// silently).
func DecodeRawIndexEntry(b []byte) (RawIndexEntry, error) {
	if len(b) < 4 {
		return RawIndexEntry{}, icyerrors.StoreCorruption("raw index entry shorter than its count prefix")
	}
	count := binary.BigEndian.Uint32(b[0:4])
	rest := b[4:]

	keys := make([]Value, 0, count)
	seen := make(map[string]struct{}, count)
	for i := uint32(0); i < count; i++ {
		v, err := decodeOneScalarKeyPrefix(&rest)
		if err != nil {
			return RawIndexEntry{}, icyerrors.StoreCorruptionf("raw index entry key %d: %v", i, err)
		}
		enc, err := EncodeScalarKey(v)
		if err != nil {
			return RawIndexEntry{}, err
		}
		sig := string(enc)
		if _, dup := seen[sig]; dup {
			return RawIndexEntry{}, icyerrors.StoreCorruptionf("raw index entry contains duplicate key at position %d", i)
		}
		seen[sig] = struct{}{}
		keys = append(keys, v)
	}
	if len(rest) != 0 {
		return RawIndexEntry{}, icyerrors.StoreCorruption("raw index entry has trailing bytes after declared key count")
	}

	return RawIndexEntry{Keys: keys}, nil
}

// RequireUnique validates that a unique index entry decoded to exactly one
// key, per spec.md §4.1.
func (e RawIndexEntry) RequireUnique() error {
	if len(e.Keys) != 1 {
		return icyerrors.StoreCorruptionf("unique index entry must decode to exactly one key, found %d", len(e.Keys))
	}
	return nil
}

// decodeOneScalarKeyPrefix decodes the next scalar key from the front of
// *rest, advancing *rest past the consumed tag+payload bytes.
func decodeOneScalarKeyPrefix(rest *[]byte) (Value, error) {
	b := *rest
	if len(b) == 0 {
		return Value{}, icyerrors.StoreCorruption("expected a scalar key, found end of buffer")
	}
	tag := scalarTag(b[0])
	width, ok := payloadWidth(tag)
	if !ok {
		return Value{}, icyerrors.StoreCorruptionf("scalar key has unknown tag %d", b[0])
	}
	total := 1 + width
	if len(b) < total {
		return Value{}, icyerrors.StoreCorruption("scalar key payload truncated")
	}
	v, err := DecodeScalarKey(b[:total])
	if err != nil {
		return Value{}, err
	}
	*rest = b[total:]
	return v, nil
}
