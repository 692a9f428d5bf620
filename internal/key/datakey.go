package key

import (
	"bytes"

	icyerrors "github.com/icydb/icydb/errors"
)

// RawDataKey is the primary store key: entity_name || canonical_key_bytes.
// The entity name prefix groups every row of one entity into a contiguous
// range, and within that range iteration order matches the primary key's
// semantic order because EncodeScalarKey is order-preserving (spec.md §4.1).
type RawDataKey struct {
	EntityName string
	Key        Value
}

// Encode renders the raw data key bytes: a NUL-terminated entity name
// followed by the scalar key encoding. NUL-termination (rather than a length
// prefix) keeps every row of an entity under one contiguous byte-string
// prefix, which is what range-scoped entity scans rely on.
func (k RawDataKey) Encode() ([]byte, error) {
	keyBytes, err := EncodeScalarKey(k.Key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(k.EntityName)+1+len(keyBytes))
	out = append(out, []byte(k.EntityName)...)
	out = append(out, 0x00)
	out = append(out, keyBytes...)
	return out, nil
}

// EntityPrefix returns the NUL-terminated prefix shared by every RawDataKey
// of the named entity, usable directly as the lower bound of a range scan.
func EntityPrefix(entityName string) []byte {
	out := make([]byte, 0, len(entityName)+1)
	out = append(out, []byte(entityName)...)
	out = append(out, 0x00)
	return out
}

// DecodeRawDataKey reverses Encode, verifying the entity name prefix matches
// expectedEntity before decoding the scalar key payload.
func DecodeRawDataKey(b []byte, expectedEntity string) (RawDataKey, error) {
	prefix := EntityPrefix(expectedEntity)
	if !bytes.HasPrefix(b, prefix) {
		return RawDataKey{}, icyerrors.StoreCorruptionf(
			"raw data key does not carry expected entity prefix %q", expectedEntity)
	}
	v, err := DecodeScalarKey(b[len(prefix):])
	if err != nil {
		return RawDataKey{}, err
	}
	return RawDataKey{EntityName: expectedEntity, Key: v}, nil
}
