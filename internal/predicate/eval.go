package predicate

import (
	"bytes"
	"strings"

	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/row"
	"github.com/icydb/icydb/internal/schema"

	icyerrors "github.com/icydb/icydb/errors"
)

// Evaluate runs node against r's field values, consulting model for field
// kinds (needed for IsMissing vs IsNull and collection element coercion).
func Evaluate(node Node, r row.Row, model *schema.EntityModel) (bool, error) {
	switch node.Kind {
	case NodeTrue:
		return true, nil
	case NodeFalse:
		return false, nil
	case NodeAnd:
		for _, c := range node.Children {
			ok, err := Evaluate(c, r, model)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case NodeOr:
		for _, c := range node.Children {
			ok, err := Evaluate(c, r, model)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case NodeNot:
		ok, err := Evaluate(node.Children[0], r, model)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case NodeIsMissing:
		_, present := r.Fields[node.Field]
		return !present, nil
	case NodeIsNull:
		v, present := r.Fields[node.Field]
		return present && v.Kind == key.KindUnit, nil
	case NodeIsEmpty, NodeIsNotEmpty:
		empty, err := isEmptyField(r, node.Field)
		if err != nil {
			return false, err
		}
		if node.Kind == NodeIsEmpty {
			return empty, nil
		}
		return !empty, nil
	case NodeTextContains, NodeTextContainsCi:
		v, present := r.Fields[node.Field]
		if !present || v.Kind != key.KindText {
			return false, nil
		}
		haystack, needle := v.Text, node.Operand.Text
		if node.Kind == NodeTextContainsCi {
			haystack, needle = strings.ToLower(haystack), strings.ToLower(needle)
		}
		return strings.Contains(haystack, needle), nil
	case NodeMapContainsKey, NodeMapContainsValue, NodeMapContainsEntry:
		return evalMapContains(node, r)
	case NodeCompare:
		return evalCompare(node, r, model)
	default:
		return false, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginQuery, "unknown predicate node kind %d", node.Kind)
	}
}

func isEmptyField(r row.Row, field string) (bool, error) {
	v, present := r.Fields[field]
	if !present {
		return true, nil
	}
	switch v.Kind {
	case key.KindList, key.KindSet:
		return len(v.List) == 0, nil
	case key.KindMap:
		return len(v.Entries) == 0, nil
	case key.KindText:
		return v.Text == "", nil
	case key.KindBlob:
		return len(v.Bytes) == 0, nil
	default:
		return false, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
			"is_empty is not defined for field kind %s", v.Kind)
	}
}

func evalMapContains(node Node, r row.Row) (bool, error) {
	v, present := r.Fields[node.Field]
	if !present || v.Kind != key.KindMap {
		return false, nil
	}
	for _, e := range v.Entries {
		switch node.Kind {
		case NodeMapContainsKey:
			if orderedEqual(e.Key, node.MapKey) {
				return true, nil
			}
		case NodeMapContainsValue:
			if orderedEqual(e.Value, node.MapValue) {
				return true, nil
			}
		case NodeMapContainsEntry:
			if orderedEqual(e.Key, node.MapKey) && orderedEqual(e.Value, node.MapValue) {
				return true, nil
			}
		}
	}
	return false, nil
}

func orderedEqual(a, b key.Value) bool {
	ab, err1 := key.EncodeOrderedComponent(a)
	bb, err2 := key.EncodeOrderedComponent(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

func evalCompare(node Node, r row.Row, model *schema.EntityModel) (bool, error) {
	v, present := r.Fields[node.Field]
	if !present {
		return false, nil
	}
	f, ok := model.Field(node.Field)
	if !ok {
		return false, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginQuery,
			"predicate references unknown field %q on entity %q", node.Field, model.Name)
	}

	switch node.Op {
	case OpIn, OpNotIn:
		matched := false
		for _, operand := range node.Operands {
			rowV, opV, err := coerce(f.Kind, v, operand, node.Coercion)
			if err != nil {
				continue
			}
			if cmp, err := compareOrdered(rowV, opV); err == nil && cmp == 0 {
				matched = true
				break
			}
		}
		if node.Op == OpIn {
			return matched, nil
		}
		return !matched, nil

	case OpAnyIn, OpAllIn:
		return evalCollectionOp(node, v, f.Kind)

	case OpContains:
		return evalContains(v, node.Operand)

	case OpStartsWith, OpEndsWith:
		if v.Kind != key.KindText || node.Operand.Kind != key.KindText {
			return false, nil
		}
		if node.Op == OpStartsWith {
			return strings.HasPrefix(v.Text, node.Operand.Text), nil
		}
		return strings.HasSuffix(v.Text, node.Operand.Text), nil

	default:
		rowV, opV, err := coerce(f.Kind, v, node.Operand, node.Coercion)
		if err != nil {
			return false, err
		}
		cmp, err := compareOrdered(rowV, opV)
		if err != nil {
			return false, err
		}
		switch node.Op {
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
			return false, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginQuery, "unhandled operator %q", node.Op)
		}
	}
}

// evalCollectionOp implements AnyIn/AllIn: node.Operand is tested against
// every element of v (a List/Set field), combined with Any/All semantics.
func evalCollectionOp(node Node, v key.Value, fieldElementKind key.Kind) (bool, error) {
	if v.Kind != key.KindList && v.Kind != key.KindSet {
		return false, nil
	}
	if len(v.List) == 0 {
		return node.Op == OpAllIn, nil // vacuously true for AllIn, false for AnyIn
	}
	for _, el := range v.List {
		rowV, opV, err := coerce(el.Kind, el, node.Operand, node.Coercion)
		matched := false
		if err == nil {
			if cmp, cErr := compareOrdered(rowV, opV); cErr == nil && cmp == 0 {
				matched = true
			}
		}
		if node.Op == OpAnyIn && matched {
			return true, nil
		}
		if node.Op == OpAllIn && !matched {
			return false, nil
		}
	}
	return node.Op == OpAllIn, nil
}

func evalContains(v, operand key.Value) (bool, error) {
	switch v.Kind {
	case key.KindList, key.KindSet:
		for _, el := range v.List {
			if orderedEqual(el, operand) {
				return true, nil
			}
		}
		return false, nil
	case key.KindText:
		if operand.Kind != key.KindText {
			return false, nil
		}
		return strings.Contains(v.Text, operand.Text), nil
	default:
		return false, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
			"contains is not defined for field kind %s", v.Kind)
	}
}

// compareOrdered compares two same-kind Values using their order-preserving
// byte encoding, the single ordering authority shared with the index layer.
func compareOrdered(a, b key.Value) (int, error) {
	if a.Kind != b.Kind {
		return 0, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginQuery,
			"cannot order-compare mismatched kinds %s/%s", a.Kind, b.Kind)
	}
	ab, err := key.EncodeOrderedComponent(a)
	if err != nil {
		return 0, err
	}
	bb, err := key.EncodeOrderedComponent(b)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(ab, bb), nil
}
