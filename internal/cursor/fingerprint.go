package cursor

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/icydb/icydb/internal/plan"
	"github.com/icydb/icydb/internal/predicate"
)

// Fingerprint derives the 32-byte plan-fingerprint signature a continuation
// token is checked against (spec.md §4.12: "signature = plan_fingerprint
// (entity, shape, coercions…)"). It depends on the plan's entity, mode,
// order spec and the *shape* of its predicate — operators, fields,
// coercions and tree structure — deliberately excluding literal operand
// values (only each operand's kind is hashed), so a resumed page with the
// same query shape but different filter constants is accepted (a different
// predicate literal can change which rows match, but a stale cursor for a
// structurally different predicate is the failure this signature exists to
// catch; changing only literals on an otherwise identical shape is the
// caller's responsibility to avoid, the same way the original
// implementation signs on shape).
func Fingerprint(p plan.LogicalPlan, accessShape string) [32]byte {
	h := sha256.New()
	h.Write([]byte(p.Entity))

	var u8 [1]byte
	u8[0] = byte(p.Mode)
	h.Write(u8[:])

	for _, term := range p.Order {
		h.Write([]byte(term.Field))
		u8[0] = byte(term.Direction)
		h.Write(u8[:])
	}

	if p.Predicate != nil {
		writePredicateShape(h, *p.Predicate)
	}

	h.Write([]byte(accessShape))

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func writePredicateShape(h interface{ Write([]byte) (int, error) }, n predicate.Node) {
	var buf [8]byte
	writeUint := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	writeUint(uint64(n.Kind))
	h.Write([]byte(n.Field))
	h.Write([]byte(n.Op))
	h.Write([]byte(n.Coercion.ID))
	writeUint(uint64(n.Operand.Kind))
	writeUint(uint64(len(n.Operands)))
	for _, op := range n.Operands {
		writeUint(uint64(op.Kind))
	}
	writeUint(uint64(n.MapKey.Kind))
	writeUint(uint64(n.MapValue.Kind))
	writeUint(uint64(len(n.Children)))
	for _, c := range n.Children {
		writePredicateShape(h, c)
	}
}
