package predicate

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"sync"

	"github.com/elastic/go-freelru"

	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/schema"

	icyerrors "github.com/icydb/icydb/errors"
)

// Policy selects how IndexCompile treats AND children it cannot compile
// against a given index's component slots (spec.md §4.10).
type Policy int

const (
	// ConservativeSubset drops uncompilable AND children; the surviving
	// program only narrows candidates, never changes semantics, because
	// every candidate it admits is re-verified by the post-access filter.
	// Used by the load path.
	ConservativeSubset Policy = iota
	// StrictAllOrNone compiles every node or produces nothing at all; used
	// wherever a dropped node would silently change result semantics.
	StrictAllOrNone
)

// ProgramKind tags an IndexPredicateProgram node's variant.
type ProgramKind int

const (
	ProgramTrue ProgramKind = iota
	ProgramFalse
	ProgramAnd
	ProgramOr
	ProgramNot
	ProgramCompare
)

// IndexPredicateProgram is a predicate reduced to operations evaluable
// directly against an index's encoded components, without decoding a row.
// Only Strict coercion is eligible: widening/casefolding interact with
// byte-ordered comparison in ways that are not safe to apply to encoded
// components without first decoding them.
type IndexPredicateProgram struct {
	Kind ProgramKind

	Children []IndexPredicateProgram

	ComponentIndex int
	Op             Op
	Literal        key.Value
}

// Compile reduces node to an IndexPredicateProgram evaluable against idx's
// component slots (fields, in order), per policy. ok is false when policy
// is StrictAllOrNone and any part of node could not be compiled, or when
// ConservativeSubset drops every child of an And (nothing usable was
// extracted — callers should treat that as "no pushdown available" rather
// than a vacuous always-match filter). A node that is itself True compiles
// to ProgramTrue with ok true.
func Compile(node Node, idx schema.IndexModel, policy Policy) (prog IndexPredicateProgram, ok bool) {
	slot := make(map[string]int, len(idx.Fields))
	for i, f := range idx.Fields {
		slot[f] = i
	}
	p, compiled := compileNode(node, slot, policy)
	if !compiled {
		return IndexPredicateProgram{}, false
	}
	return p, true
}

func compileNode(node Node, slot map[string]int, policy Policy) (IndexPredicateProgram, bool) {
	switch node.Kind {
	case NodeTrue:
		return IndexPredicateProgram{Kind: ProgramTrue}, true
	case NodeFalse:
		return IndexPredicateProgram{Kind: ProgramFalse}, true

	case NodeAnd:
		var kept []IndexPredicateProgram
		for _, c := range node.Children {
			cp, ok := compileNode(c, slot, policy)
			if !ok {
				if policy == StrictAllOrNone {
					return IndexPredicateProgram{}, false
				}
				continue // ConservativeSubset: drop this child
			}
			kept = append(kept, cp)
		}
		if len(kept) == 0 {
			return IndexPredicateProgram{}, false
		}
		if len(kept) == 1 {
			return kept[0], true
		}
		return IndexPredicateProgram{Kind: ProgramAnd, Children: kept}, true

	case NodeOr:
		// Or cannot be conservatively narrowed: dropping one disjunct would
		// reject candidates the true predicate would have admitted. Every
		// branch must compile under either policy.
		kept := make([]IndexPredicateProgram, 0, len(node.Children))
		for _, c := range node.Children {
			cp, ok := compileNode(c, slot, StrictAllOrNone)
			if !ok {
				return IndexPredicateProgram{}, false
			}
			kept = append(kept, cp)
		}
		return IndexPredicateProgram{Kind: ProgramOr, Children: kept}, true

	case NodeNot:
		cp, ok := compileNode(node.Children[0], slot, StrictAllOrNone)
		if !ok {
			return IndexPredicateProgram{}, false
		}
		return IndexPredicateProgram{Kind: ProgramNot, Children: []IndexPredicateProgram{cp}}, true

	case NodeCompare:
		if node.Coercion.ID != CoercionStrict && node.Coercion.ID != "" {
			return IndexPredicateProgram{}, false
		}
		idx, present := slot[node.Field]
		if !present {
			return IndexPredicateProgram{}, false
		}
		switch node.Op {
		case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
			return IndexPredicateProgram{
				Kind:           ProgramCompare,
				ComponentIndex: idx,
				Op:             node.Op,
				Literal:        node.Operand,
			}, true
		default:
			// In/NotIn/AnyIn/AllIn/Contains/StartsWith/EndsWith have no
			// single-literal index-component representation.
			return IndexPredicateProgram{}, false
		}

	default:
		// IsNull/IsMissing/IsEmpty/TextContains/MapContains* all require
		// decoding structure the raw ordered-component bytes don't expose.
		return IndexPredicateProgram{}, false
	}
}

// EvaluateProgram runs prog against one index entry's decoded components.
func EvaluateProgram(prog IndexPredicateProgram, components []key.Value) (bool, error) {
	switch prog.Kind {
	case ProgramTrue:
		return true, nil
	case ProgramFalse:
		return false, nil
	case ProgramAnd:
		for _, c := range prog.Children {
			ok, err := EvaluateProgram(c, components)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case ProgramOr:
		for _, c := range prog.Children {
			ok, err := EvaluateProgram(c, components)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case ProgramNot:
		ok, err := EvaluateProgram(prog.Children[0], components)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case ProgramCompare:
		if prog.ComponentIndex >= len(components) {
			return false, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginIndex,
				"compiled program references component slot %d but entry has %d components", prog.ComponentIndex, len(components))
		}
		cmp, err := compareOrdered(components[prog.ComponentIndex], prog.Literal)
		if err != nil {
			return false, err
		}
		switch prog.Op {
		case OpEq:
			return cmp == 0, nil
		case OpNe:
			return cmp != 0, nil
		case OpLt:
			return cmp < 0, nil
		case OpLte:
			return cmp <= 0, nil
		case OpGt:
			return cmp > 0, nil
		case OpGte:
			return cmp >= 0, nil
		default:
			return false, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginIndex, "unhandled compiled operator %q", prog.Op)
		}
	default:
		return false, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginIndex, "unknown program node kind %d", prog.Kind)
	}
}

// Fingerprint derives a stable cache key from a predicate AST plus the
// compile target, independent of map/slice iteration order.
func Fingerprint(node Node, idx schema.IndexModel, policy Policy) [32]byte {
	h := sha256.New()
	h.Write([]byte(idx.Name))
	var pbuf [8]byte
	binary.BigEndian.PutUint64(pbuf[:], uint64(policy))
	h.Write(pbuf[:])
	writeNode(h, node)
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func writeNode(h hash.Hash, node Node) {
	var ibuf [8]byte
	writeUint := func(v uint64) {
		binary.BigEndian.PutUint64(ibuf[:], v)
		h.Write(ibuf[:])
	}
	writeUint(uint64(node.Kind))
	h.Write([]byte(node.Field))
	h.Write([]byte(node.Op))
	writeUint(uint64(len(node.Coercion.ID)))
	h.Write([]byte(node.Coercion.ID))

	writeValue := func(v key.Value) {
		if b, err := key.EncodeOrderedComponent(v); err == nil {
			writeUint(uint64(len(b)))
			h.Write(b)
		} else {
			writeUint(0)
		}
	}
	writeValue(node.Operand)
	writeUint(uint64(len(node.Operands)))
	for _, op := range node.Operands {
		writeValue(op)
	}
	writeValue(node.MapKey)
	writeValue(node.MapValue)

	writeUint(uint64(len(node.Children)))
	for _, c := range node.Children {
		writeNode(h, c)
	}
}

// compileCache memoizes Compile results by (fingerprint) so repeated plan
// materializations against the same predicate/index/policy skip re-walking
// the AST. It caches programs, never rows or candidate keys, so it carries
// no staleness risk with respect to §4.15's row-cache prohibition.
type cacheEntry struct {
	prog IndexPredicateProgram
	ok   bool
}

var (
	cacheOnce sync.Once
	cache     *freelru.LRU[[32]byte, cacheEntry]
)

func hashKey(k [32]byte) uint32 {
	return binary.BigEndian.Uint32(k[:4])
}

func ensureCache() *freelru.LRU[[32]byte, cacheEntry] {
	cacheOnce.Do(func() {
		c, err := freelru.New[[32]byte, cacheEntry](4096, hashKey)
		if err != nil {
			panic(fmt.Sprintf("predicate: failed to construct compile cache: %v", err))
		}
		cache = c
	})
	return cache
}

// CompileCached behaves like Compile but memoizes by the node/index/policy
// fingerprint in a bounded LRU, avoiding repeated AST walks for predicates
// replayed across many plan materializations (e.g. paginated continuations
// of the same query).
func CompileCached(node Node, idx schema.IndexModel, policy Policy) (IndexPredicateProgram, bool) {
	fp := Fingerprint(node, idx, policy)
	c := ensureCache()
	if entry, found := c.Get(fp); found {
		return entry.prog, entry.ok
	}
	prog, ok := Compile(node, idx, policy)
	c.Add(fp, cacheEntry{prog: prog, ok: ok})
	return prog, ok
}
