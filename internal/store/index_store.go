package store

import (
	"bytes"

	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/kvstore"

	icyerrors "github.com/icydb/icydb/errors"
)

// Direction selects ascending or descending traversal of an index range.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// IndexStore is the secondary-index store for one index definition:
// RawIndexKey prefix (kind, index_id, components) -> RawIndexEntry (the set
// of primary keys matching those components).
type IndexStore struct {
	IndexID uint32
	Kind    key.IndexKeyKind
	om      *kvstore.OrderedMap
	fp      *kvstore.FingerprintMap
	version uint32
}

// NewIndexStore constructs an empty index store.
func NewIndexStore(indexID uint32, unique bool) *IndexStore {
	kind := key.IndexKeyMulti
	if unique {
		kind = key.IndexKeyUnique
	}
	return &IndexStore{IndexID: indexID, Kind: kind, om: kvstore.NewOrderedMap(), fp: kvstore.NewFingerprintMap(), version: 1}
}

// componentPrefix encodes the (kind, index_id, arity, component*) prefix
// shared by every RawIndexKey with these leading components, without a
// trailing primary key.
func (s *IndexStore) componentPrefix(components []key.Value) ([]byte, error) {
	// Encode via RawIndexKey with a placeholder PK, then trim the PK
	// bytes back off, so we reuse the single canonical framing routine
	// rather than duplicating the header-encoding logic.
	placeholder := key.RawIndexKey{Kind: s.Kind, IndexID: s.IndexID, Components: components, PrimaryKey: key.Unit()}
	full, err := placeholder.Encode()
	if err != nil {
		return nil, err
	}
	pkBytes, err := key.EncodeScalarKey(key.Unit())
	if err != nil {
		return nil, err
	}
	return full[:len(full)-len(pkBytes)], nil
}

// Get returns the index entry stored at exactly these components.
func (s *IndexStore) Get(components []key.Value) (key.RawIndexEntry, bool, error) {
	bucketKey, err := s.bucketKey(components)
	if err != nil {
		return key.RawIndexEntry{}, false, err
	}
	raw, ok := s.om.Get(bucketKey)
	if !ok {
		return key.RawIndexEntry{}, false, nil
	}
	entry, err := key.DecodeRawIndexEntry(raw)
	if err != nil {
		return key.RawIndexEntry{}, false, err
	}
	return entry, true, nil
}

// bucketKey encodes the storage key for one components bucket: a RawIndexKey
// whose trailing primary key is the canonical Unit placeholder, so one
// physical OrderedMap entry holds every primary key sharing these
// components (the set lives in the value, a RawIndexEntry).
func (s *IndexStore) bucketKey(components []key.Value) ([]byte, error) {
	rk := key.RawIndexKey{Kind: s.Kind, IndexID: s.IndexID, Components: components, PrimaryKey: key.Unit()}
	return rk.Encode()
}

// Insert adds pk to the entry for components, rejecting a second distinct
// key under a unique index (spec.md §4.1).
func (s *IndexStore) Insert(components []key.Value, pk key.Value) error {
	bucketKey, err := s.bucketKey(components)
	if err != nil {
		return err
	}
	entry, _, err := s.Get(components)
	if err != nil {
		return err
	}

	pkBytes, err := key.EncodeScalarKey(pk)
	if err != nil {
		return err
	}
	for _, existing := range entry.Keys {
		eb, err := key.EncodeScalarKey(existing)
		if err != nil {
			return err
		}
		if bytes.Equal(eb, pkBytes) {
			return nil // already present, idempotent
		}
	}
	if s.Kind == key.IndexKeyUnique && len(entry.Keys) >= 1 {
		return icyerrors.Newf(icyerrors.ClassConflict, icyerrors.OriginIndex,
			"unique index %d already has an entry for these components", s.IndexID)
	}

	entry.Keys = append(entry.Keys, pk)
	encoded, err := entry.Encode()
	if err != nil {
		return err
	}
	s.om.Insert(bucketKey, encoded)
	s.fp.Set(bucketKey, kvstore.ComputeFingerprint(s.version, bucketKey, encoded))
	return nil
}

// Remove deletes pk from the entry for components, removing the bucket
// entirely once empty. Reports whether pk was present.
func (s *IndexStore) Remove(components []key.Value, pk key.Value) (bool, error) {
	bucketKey, err := s.bucketKey(components)
	if err != nil {
		return false, err
	}
	entry, ok, err := s.Get(components)
	if err != nil || !ok {
		return false, err
	}

	pkBytes, err := key.EncodeScalarKey(pk)
	if err != nil {
		return false, err
	}
	kept := entry.Keys[:0]
	removed := false
	for _, existing := range entry.Keys {
		eb, err := key.EncodeScalarKey(existing)
		if err != nil {
			return false, err
		}
		if bytes.Equal(eb, pkBytes) {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	if !removed {
		return false, nil
	}
	if len(kept) == 0 {
		s.om.Remove(bucketKey)
		s.fp.Delete(bucketKey)
		return true, nil
	}
	entry.Keys = kept
	encoded, err := entry.Encode()
	if err != nil {
		return false, err
	}
	s.om.Insert(bucketKey, encoded)
	s.fp.Set(bucketKey, kvstore.ComputeFingerprint(s.version, bucketKey, encoded))
	return true, nil
}

// Clear removes every entry from the index.
func (s *IndexStore) Clear() {
	s.om.Clear()
	s.fp.Clear()
}

// Len reports the number of distinct component buckets stored.
func (s *IndexStore) Len() int {
	return s.om.Len()
}

// incrementPrefix returns the lexicographically-next byte string after every
// string with this prefix (the standard "prefix upper bound" trick), or nil
// if prefix is all 0xFF (meaning unbounded above).
func incrementPrefix(prefix []byte) []byte {
	out := make([]byte, len(prefix))
	copy(out, prefix)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 0xFF {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}

// ResolveInRangeLimited walks the index in the given direction, scoped to
// entries whose components lie between lowerComponents and upperComponents,
// both inclusive: every bucket whose components begin with upperComponents
// is in range (either bound nil means unbounded in that direction).
// Given an anchor, it resumes at the anchor's component bucket: buckets
// before it in walk direction are skipped, and every primary key of the
// anchor's own bucket is returned, with no comparison against the anchor's
// primary key. It collects up to limit primary keys that satisfy
// predicate (nil predicate accepts everything). This backs both
// index-prefix and index-range access paths (spec.md §4, the "resolve raw
// range" probes used by the planner/executor).
func (s *IndexStore) ResolveInRangeLimited(
	lowerComponents, upperComponents []key.Value,
	anchor *key.RawIndexKey,
	direction Direction,
	limit int,
	predicate func(components []key.Value, pk key.Value) bool,
) ([]key.Value, error) {
	var lb, ub []byte
	if lowerComponents != nil {
		b, err := s.componentPrefix(lowerComponents)
		if err != nil {
			return nil, err
		}
		lb = b
	}
	if upperComponents != nil {
		b, err := s.componentPrefix(upperComponents)
		if err != nil {
			return nil, err
		}
		ub = incrementPrefix(b)
	}

	var kvs []kvstore.KV
	if direction == Ascending {
		kvs = s.om.Range(lb, ub)
	} else {
		kvs = s.om.RangeDescend(lb, ub)
	}

	var anchorBucket []byte
	if anchor != nil {
		b, err := s.bucketKey(anchor.Components)
		if err != nil {
			return nil, err
		}
		anchorBucket = b
	}

	var out []key.Value
	for _, kv := range kvs {
		if anchorBucket != nil {
			c := bytes.Compare(kv.Key, anchorBucket)
			if (direction == Ascending && c < 0) || (direction == Descending && c > 0) {
				continue
			}
		}
		entry, err := key.DecodeRawIndexEntry(kv.Value)
		if err != nil {
			return nil, err
		}
		var components []key.Value
		if predicate != nil {
			rik, err := key.DecodeRawIndexKey(kv.Key)
			if err != nil {
				return nil, err
			}
			components = rik.Components
		}
		for _, pk := range entry.Keys {
			if predicate != nil && !predicate(components, pk) {
				continue
			}
			out = append(out, pk)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}
