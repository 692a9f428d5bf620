// Package store implements DataStore, IndexStore and StoreRegistry: the
// per-entity ordered byte-map wrappers everything above the key/row layer is
// built on (spec.md §4.2-§4.4).
package store

import (
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/kvstore"
	"github.com/icydb/icydb/internal/row"
	"github.com/icydb/icydb/internal/schema"

	icyerrors "github.com/icydb/icydb/errors"
)

// DataStore is the authoritative primary-key-ordered store for one entity
// type: RawDataKey -> encoded row bytes.
type DataStore struct {
	Model   *schema.EntityModel
	om      *kvstore.OrderedMap
	fp      *kvstore.FingerprintMap
	version uint32
}

// NewDataStore constructs an empty data store for model.
func NewDataStore(model *schema.EntityModel) *DataStore {
	return &DataStore{Model: model, om: kvstore.NewOrderedMap(), fp: kvstore.NewFingerprintMap(), version: 1}
}

func (s *DataStore) rawKey(pk key.Value) ([]byte, error) {
	return key.RawDataKey{EntityName: s.Model.Name, Key: pk}.Encode()
}

// Get decodes the row stored at pk, if present.
func (s *DataStore) Get(pk key.Value) (row.Row, bool, error) {
	rk, err := s.rawKey(pk)
	if err != nil {
		return row.Row{}, false, err
	}
	raw, ok := s.om.Get(rk)
	if !ok {
		return row.Row{}, false, nil
	}
	r, err := row.TryDecode(s.Model, raw, &pk)
	if err != nil {
		return row.Row{}, false, err
	}
	return r, true, nil
}

// ContainsKey reports whether pk is present, without decoding the row.
func (s *DataStore) ContainsKey(pk key.Value) (bool, error) {
	rk, err := s.rawKey(pk)
	if err != nil {
		return false, err
	}
	return s.om.ContainsKey(rk), nil
}

// Insert encodes and stores fields under pk, overwriting any existing row.
func (s *DataStore) Insert(pk key.Value, fields map[string]key.Value) error {
	rk, err := s.rawKey(pk)
	if err != nil {
		return err
	}
	encoded, err := row.Encode(s.Model, fields)
	if err != nil {
		return err
	}
	s.om.Insert(rk, encoded)
	s.fp.Set(rk, kvstore.ComputeFingerprint(s.version, rk, encoded))
	return nil
}

// Remove deletes the row at pk, reporting whether it was present.
func (s *DataStore) Remove(pk key.Value) (bool, error) {
	rk, err := s.rawKey(pk)
	if err != nil {
		return false, err
	}
	_, had := s.om.Remove(rk)
	if had {
		s.fp.Delete(rk)
	}
	return had, nil
}

// Range decodes every row with primary key in [lower, upper) ascending
// (nil bounds are unbounded in that direction).
func (s *DataStore) Range(lower, upper *key.Value) ([]row.Row, error) {
	lb, ub, err := s.rangeBounds(lower, upper)
	if err != nil {
		return nil, err
	}
	kvs := s.om.Range(lb, ub)
	return s.decodeAll(kvs)
}

// RangeDescend is Range in descending primary-key order.
func (s *DataStore) RangeDescend(lower, upper *key.Value) ([]row.Row, error) {
	lb, ub, err := s.rangeBounds(lower, upper)
	if err != nil {
		return nil, err
	}
	kvs := s.om.RangeDescend(lb, ub)
	return s.decodeAll(kvs)
}

func (s *DataStore) rangeBounds(lower, upper *key.Value) ([]byte, []byte, error) {
	lb := key.EntityPrefix(s.Model.Name)
	ub := entityUpperBound(s.Model.Name)
	if lower != nil {
		b, err := s.rawKey(*lower)
		if err != nil {
			return nil, nil, err
		}
		lb = b
	}
	if upper != nil {
		b, err := s.rawKey(*upper)
		if err != nil {
			return nil, nil, err
		}
		ub = b
	}
	return lb, ub, nil
}

// entityUpperBound returns an exclusive upper bound one past every possible
// key under this entity's NUL-terminated prefix.
func entityUpperBound(entityName string) []byte {
	prefix := key.EntityPrefix(entityName)
	out := make([]byte, len(prefix))
	copy(out, prefix)
	out[len(out)-1] = 0x01 // NUL+1, strictly above any scalar-key-suffixed byte string
	return out
}

func (s *DataStore) decodeAll(kvs []kvstore.KV) ([]row.Row, error) {
	out := make([]row.Row, 0, len(kvs))
	for _, kv := range kvs {
		dk, err := key.DecodeRawDataKey(kv.Key, s.Model.Name)
		if err != nil {
			return nil, err
		}
		r, err := row.TryDecode(s.Model, kv.Value, &dk.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Iter decodes every row of this entity, ascending.
func (s *DataStore) Iter() ([]row.Row, error) {
	return s.Range(nil, nil)
}

// Len reports the number of rows stored (may include rows of other entities
// if the backing map is ever shared; callers are expected to use one
// DataStore per entity, per StoreRegistry).
func (s *DataStore) Len() int {
	return s.om.Len()
}

// MemoryBytes reports approximate live bytes held by this store.
func (s *DataStore) MemoryBytes() int {
	return s.om.MemoryBytes()
}

// VerifyFingerprint is a debug-only consistency check; never a correctness
// witness (spec.md §4.2, §9).
func (s *DataStore) VerifyFingerprint(pk key.Value) (bool, error) {
	rk, err := s.rawKey(pk)
	if err != nil {
		return false, err
	}
	raw, ok := s.om.Get(rk)
	if !ok {
		return false, icyerrors.StoreUnsupported("cannot verify fingerprint of an absent key")
	}
	return s.fp.Verify(s.version, rk, raw), nil
}
