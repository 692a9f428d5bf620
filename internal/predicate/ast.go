// Package predicate implements the predicate AST, its coercion model, and
// in-memory evaluation (spec.md §5), plus an index-only compiler that
// decides which leaves of a predicate an access path can satisfy directly
// from index keys without decoding a row.
package predicate

import (
	"github.com/icydb/icydb/internal/key"

	icyerrors "github.com/icydb/icydb/errors"
)

// Op is a comparison or membership operator usable inside a Compare node.
type Op string

const (
	OpEq         Op = "Eq"
	OpNe         Op = "Ne"
	OpLt         Op = "Lt"
	OpLte        Op = "Lte"
	OpGt         Op = "Gt"
	OpGte        Op = "Gte"
	OpIn         Op = "In"
	OpNotIn      Op = "NotIn"
	OpAnyIn      Op = "AnyIn"
	OpAllIn      Op = "AllIn"
	OpContains   Op = "Contains"
	OpStartsWith Op = "StartsWith"
	OpEndsWith   Op = "EndsWith"
)

// CoercionID selects how a predicate's literal operand is reconciled with
// the field's declared kind before comparison (spec.md §5).
type CoercionID string

const (
	CoercionStrict           CoercionID = "Strict"           // literal kind must exactly match field kind
	CoercionNumericWiden     CoercionID = "NumericWiden"      // narrower numeric literal widened to field's numeric kind
	CoercionTextCasefold     CoercionID = "TextCasefold"      // case-insensitive text comparison
	CoercionCollectionElement CoercionID = "CollectionElement" // literal compared against each element of a List/Set field
)

// CoercionSpec pairs a coercion strategy with any parameters it needs.
type CoercionSpec struct {
	ID CoercionID
}

// NodeKind tags a predicate AST node's variant.
type NodeKind int

const (
	NodeTrue NodeKind = iota
	NodeFalse
	NodeAnd
	NodeOr
	NodeNot
	NodeCompare
	NodeIsNull
	NodeIsMissing
	NodeIsEmpty
	NodeIsNotEmpty
	NodeTextContains
	NodeTextContainsCi
	NodeMapContainsKey
	NodeMapContainsValue
	NodeMapContainsEntry
)

// Node is one predicate AST node. Only the fields relevant to Kind are
// populated; this mirrors the tagged-union shape used throughout the
// engine (see key.Value) rather than an interface hierarchy, keeping
// evaluation and compilation as plain switches.
type Node struct {
	Kind NodeKind

	Children []Node // And/Or operands, Not's single operand (Children[0])

	Field    string // Compare/IsNull/IsMissing/IsEmpty/.../MapContains*
	Op       Op     // Compare
	Operand  key.Value
	Operands []key.Value // In/NotIn/AnyIn/AllIn
	Coercion CoercionSpec

	MapKey   key.Value // MapContainsKey/MapContainsEntry
	MapValue key.Value // MapContainsValue/MapContainsEntry
}

// True and False are the predicate tree's terminal constants.
func True() Node  { return Node{Kind: NodeTrue} }
func False() Node { return Node{Kind: NodeFalse} }

// And conjuncts nodes.
func And(nodes ...Node) Node { return Node{Kind: NodeAnd, Children: nodes} }

// Or disjuncts nodes.
func Or(nodes ...Node) Node { return Node{Kind: NodeOr, Children: nodes} }

// NodeNot negates node.
func Not(node Node) Node { return Node{Kind: NodeNot, Children: []Node{node}} }

// Compare builds a field comparison node.
func Compare(field string, op Op, operand key.Value, coercion CoercionSpec) Node {
	return Node{Kind: NodeCompare, Field: field, Op: op, Operand: operand, Coercion: coercion}
}

// CompareMulti builds an In/NotIn/AnyIn/AllIn node.
func CompareMulti(field string, op Op, operands []key.Value, coercion CoercionSpec) Node {
	return Node{Kind: NodeCompare, Field: field, Op: op, Operands: operands, Coercion: coercion}
}

func IsNull(field string) Node     { return Node{Kind: NodeIsNull, Field: field} }
func IsMissing(field string) Node  { return Node{Kind: NodeIsMissing, Field: field} }
func IsEmpty(field string) Node    { return Node{Kind: NodeIsEmpty, Field: field} }
func IsNotEmpty(field string) Node { return Node{Kind: NodeIsNotEmpty, Field: field} }

func TextContains(field string, substr string, caseInsensitive bool) Node {
	kind := NodeTextContains
	if caseInsensitive {
		kind = NodeTextContainsCi
	}
	return Node{Kind: kind, Field: field, Operand: key.Text(substr)}
}

func MapContainsKey(field string, k key.Value) Node {
	return Node{Kind: NodeMapContainsKey, Field: field, MapKey: k}
}
func MapContainsValue(field string, v key.Value) Node {
	return Node{Kind: NodeMapContainsValue, Field: field, MapValue: v}
}
func MapContainsEntry(field string, k, v key.Value) Node {
	return Node{Kind: NodeMapContainsEntry, Field: field, MapKey: k, MapValue: v}
}

// validateOperator reports whether op is a recognized Compare operator.
func validateOperator(op Op) error {
	switch op {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte, OpIn, OpNotIn, OpAnyIn, OpAllIn, OpContains, OpStartsWith, OpEndsWith:
		return nil
	default:
		return icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginQuery, "unknown predicate operator %q", op)
	}
}
