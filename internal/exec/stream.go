// Package exec implements the execution kernel: ordered key streams, row
// materialization, the post-access phase pipeline, aggregates, and the
// Load/Save/Delete executors sharing the commit window (spec.md §4.13,
// §4.14).
package exec

import (
	"bytes"
	"hash/fnv"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/icydb/icydb/internal/key"

	icyerrors "github.com/icydb/icydb/errors"
)

// OrderedKeyStream yields primary keys in a single, caller-established
// canonical order. NextKey returns (key, true, nil) while keys remain,
// (zero, false, nil) once exhausted, or a non-nil error on fault.
type OrderedKeyStream interface {
	NextKey() (key.Value, bool, error)
}

// VecOrderedKeyStream streams a pre-materialized, already-ordered key
// slice — the terminal adapter every access path eventually feeds into.
type VecOrderedKeyStream struct {
	keys []key.Value
	pos  int
}

// NewVecOrderedKeyStream wraps keys, which must already be in the stream's
// declared canonical order.
func NewVecOrderedKeyStream(keys []key.Value) *VecOrderedKeyStream {
	return &VecOrderedKeyStream{keys: keys}
}

func (s *VecOrderedKeyStream) NextKey() (key.Value, bool, error) {
	if s.pos >= len(s.keys) {
		return key.Value{}, false, nil
	}
	k := s.keys[s.pos]
	s.pos++
	return k, true, nil
}

// Comparator orders two keys under a canonical comparator the caller
// establishes (typically an order spec's collapsed-to-PK comparator, or a
// bare scalar PK comparator for ByKey/KeyRange access).
type Comparator func(a, b key.Value) (int, error)

// ScalarComparator orders by a key's own order-preserving scalar encoding,
// the default comparator for single-field primary-key streams.
func ScalarComparator(a, b key.Value) (int, error) {
	ab, err := key.EncodeScalarKey(a)
	if err != nil {
		return 0, err
	}
	bb, err := key.EncodeScalarKey(b)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(ab, bb), nil
}

// MergeOrderedKeyStream unions several same-order streams via pairwise
// sorted merge, deduplicating keys that appear in more than one input
// (spec.md §4.13: "Union/intersection of AccessPlan is reduced pairwise").
// A roaring.Bitmap of each key's fnv32 hash fast-paths the common case of
// no collision; a colliding hash falls back to the exact comparator so
// correctness never depends on the hash being collision-free.
type MergeOrderedKeyStream struct {
	sources []OrderedKeyStream
	cmp     Comparator
	heads   []*mergeHead
	seen    *roaring.Bitmap
	seenRaw map[uint32][][]byte
}

type mergeHead struct {
	k      key.Value
	ok     bool
	stream OrderedKeyStream
}

// NewMergeOrderedKeyStream constructs a union stream over sources, ordered
// by cmp.
func NewMergeOrderedKeyStream(sources []OrderedKeyStream, cmp Comparator) (*MergeOrderedKeyStream, error) {
	m := &MergeOrderedKeyStream{
		sources: sources,
		cmp:     cmp,
		seen:    roaring.New(),
		seenRaw: make(map[uint32][][]byte),
	}
	m.heads = make([]*mergeHead, len(sources))
	for i, s := range sources {
		h := &mergeHead{stream: s}
		if err := h.advance(); err != nil {
			return nil, err
		}
		m.heads[i] = h
	}
	return m, nil
}

func (h *mergeHead) advance() error {
	k, ok, err := h.stream.NextKey()
	if err != nil {
		return err
	}
	h.k, h.ok = k, ok
	return nil
}

func (m *MergeOrderedKeyStream) markSeen(k key.Value) (bool, error) {
	enc, err := key.EncodeScalarKey(k)
	if err != nil {
		return false, err
	}
	h := fnv.New32a()
	h.Write(enc)
	sum := h.Sum32()
	if m.seen.Contains(sum) {
		for _, prior := range m.seenRaw[sum] {
			if bytes.Equal(prior, enc) {
				return true, nil // already emitted
			}
		}
	}
	m.seen.Add(sum)
	m.seenRaw[sum] = append(m.seenRaw[sum], enc)
	return false, nil
}

func (m *MergeOrderedKeyStream) NextKey() (key.Value, bool, error) {
	for {
		best := -1
		for i, h := range m.heads {
			if !h.ok {
				continue
			}
			if best == -1 {
				best = i
				continue
			}
			cmp, err := m.cmp(h.k, m.heads[best].k)
			if err != nil {
				return key.Value{}, false, err
			}
			if cmp < 0 {
				best = i
			}
		}
		if best == -1 {
			return key.Value{}, false, nil
		}
		k := m.heads[best].k
		if err := m.heads[best].advance(); err != nil {
			return key.Value{}, false, err
		}
		dup, err := m.markSeen(k)
		if err != nil {
			return key.Value{}, false, err
		}
		if dup {
			continue
		}
		return k, true, nil
	}
}

// IntersectOrderedKeyStream intersects several same-order streams via
// sorted merge: a key only emits once it is the current head of every
// source simultaneously.
type IntersectOrderedKeyStream struct {
	sources []OrderedKeyStream
	cmp     Comparator
	heads   []*mergeHead
}

// NewIntersectOrderedKeyStream constructs an intersection stream over
// sources, ordered by cmp. sources must be non-empty.
func NewIntersectOrderedKeyStream(sources []OrderedKeyStream, cmp Comparator) (*IntersectOrderedKeyStream, error) {
	if len(sources) == 0 {
		return nil, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginExecutor,
			"intersect stream requires at least one source")
	}
	s := &IntersectOrderedKeyStream{sources: sources, cmp: cmp}
	s.heads = make([]*mergeHead, len(sources))
	for i, src := range sources {
		h := &mergeHead{stream: src}
		if err := h.advance(); err != nil {
			return nil, err
		}
		s.heads[i] = h
	}
	return s, nil
}

func (s *IntersectOrderedKeyStream) NextKey() (key.Value, bool, error) {
	for {
		for _, h := range s.heads {
			if !h.ok {
				return key.Value{}, false, nil
			}
		}
		// Advance every head below the maximum until all agree, or one exhausts.
		maxIdx := 0
		for i := 1; i < len(s.heads); i++ {
			cmp, err := s.cmp(s.heads[i].k, s.heads[maxIdx].k)
			if err != nil {
				return key.Value{}, false, err
			}
			if cmp > 0 {
				maxIdx = i
			}
		}
		allEqual := true
		for i, h := range s.heads {
			if i == maxIdx {
				continue
			}
			cmp, err := s.cmp(h.k, s.heads[maxIdx].k)
			if err != nil {
				return key.Value{}, false, err
			}
			if cmp != 0 {
				allEqual = false
				if err := h.advance(); err != nil {
					return key.Value{}, false, err
				}
			}
		}
		if allEqual {
			k := s.heads[0].k
			for _, h := range s.heads {
				if err := h.advance(); err != nil {
					return key.Value{}, false, err
				}
			}
			return k, true, nil
		}
	}
}

// BudgetedOrderedKeyStream caps the number of keys drawn from inner,
// returning exhausted once the budget is spent (spec.md §4.13's "fetch
// cap" adapter, used to realize bounded index probes for aggregate
// terminals without over-reading the index).
type BudgetedOrderedKeyStream struct {
	inner   OrderedKeyStream
	budget  int
	fetched int
}

// NewBudgetedOrderedKeyStream wraps inner with a hard cap of budget keys.
func NewBudgetedOrderedKeyStream(inner OrderedKeyStream, budget int) *BudgetedOrderedKeyStream {
	return &BudgetedOrderedKeyStream{inner: inner, budget: budget}
}

func (s *BudgetedOrderedKeyStream) NextKey() (key.Value, bool, error) {
	if s.fetched >= s.budget {
		return key.Value{}, false, nil
	}
	k, ok, err := s.inner.NextKey()
	if err != nil || !ok {
		return key.Value{}, false, err
	}
	s.fetched++
	return k, true, nil
}
