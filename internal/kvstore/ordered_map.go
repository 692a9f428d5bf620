// Package kvstore provides the ordered byte-map primitives that DataStore
// and IndexStore are built on (spec.md §4.2-§4.4). Two distinct
// ordered-map implementations back two distinct concerns deliberately: the
// primary key/value content uses google/btree, while the diagnostic
// fingerprint sidecar (spec.md §4.2) uses tidwall/btree, so fingerprint
// iteration order can never accidentally be assumed to equal primary-store
// iteration order.
package kvstore

import (
	"bytes"

	"github.com/google/btree"
)

// item is the google/btree element type: a raw byte key with an opaque value.
type item struct {
	key   []byte
	value []byte
}

func less(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// OrderedMap is an ordered []byte -> []byte map with half-open range queries,
// the shared backing structure for DataStore and IndexStore.
type OrderedMap struct {
	tree *btree.BTreeG[item]
	size int
}

// NewOrderedMap constructs an empty ordered map.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{tree: btree.NewG(32, less)}
}

// Get returns the value for key, or (nil, false) if absent.
func (m *OrderedMap) Get(key []byte) ([]byte, bool) {
	it, ok := m.tree.Get(item{key: key})
	if !ok {
		return nil, false
	}
	return it.value, true
}

// ContainsKey reports whether key is present.
func (m *OrderedMap) ContainsKey(key []byte) bool {
	_, ok := m.tree.Get(item{key: key})
	return ok
}

// Insert upserts key -> value, returning the previous value if any.
func (m *OrderedMap) Insert(key, value []byte) ([]byte, bool) {
	prev, had := m.tree.ReplaceOrInsert(item{key: key, value: value})
	if !had {
		m.size += len(key) + len(value)
		return nil, false
	}
	m.size += len(value) - len(prev.value)
	return prev.value, true
}

// Remove deletes key, returning the removed value if any.
func (m *OrderedMap) Remove(key []byte) ([]byte, bool) {
	prev, had := m.tree.Delete(item{key: key})
	if !had {
		return nil, false
	}
	m.size -= len(prev.key) + len(prev.value)
	return prev.value, true
}

// Clear removes all entries.
func (m *OrderedMap) Clear() {
	m.tree.Clear(false)
	m.size = 0
}

// Len reports the number of entries.
func (m *OrderedMap) Len() int {
	return m.tree.Len()
}

// MemoryBytes is an approximate accounting of live key+value bytes.
func (m *OrderedMap) MemoryBytes() int {
	return m.size
}

// KV is one ordered key/value pair, returned by range iteration.
type KV struct {
	Key   []byte
	Value []byte
}

// Range returns all entries in [lower, upper) (upper == nil means unbounded
// above), in ascending key order. This is the half-open range contract
// spec.md §4.2 requires of DataStore.range.
func (m *OrderedMap) Range(lower, upper []byte) []KV {
	var out []KV
	visit := func(it item) bool {
		if upper != nil && bytes.Compare(it.key, upper) >= 0 {
			return false
		}
		out = append(out, KV{Key: it.key, Value: it.value})
		return true
	}
	if lower == nil {
		m.tree.Ascend(visit)
	} else {
		m.tree.AscendGreaterOrEqual(item{key: lower}, visit)
	}
	return out
}

// RangeDescend walks entries in descending key order over [lower, upper)
// (upper == nil means unbounded above, lower == nil means unbounded below).
// Implemented as a bounded full descent rather than a seeked range query:
// this engine simulates a small in-process store, not a page-file index, so
// the O(n) walk is an acceptable trade for a library-agnostic, obviously
// correct bound check.
func (m *OrderedMap) RangeDescend(lower, upper []byte) []KV {
	var out []KV
	m.tree.Descend(func(it item) bool {
		if upper != nil && bytes.Compare(it.key, upper) >= 0 {
			return true // keep descending until we enter range
		}
		if lower != nil && bytes.Compare(it.key, lower) < 0 {
			return false // below lower bound; nothing further matters
		}
		out = append(out, KV{Key: it.key, Value: it.value})
		return true
	})
	return out
}

// Iter returns every entry in ascending order.
func (m *OrderedMap) Iter() []KV {
	return m.Range(nil, nil)
}
