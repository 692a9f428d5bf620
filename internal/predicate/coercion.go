package predicate

import (
	"math/big"
	"strings"

	"github.com/icydb/icydb/internal/key"

	icyerrors "github.com/icydb/icydb/errors"
)

// coerce reconciles operand against a row value of kind fieldKind per spec,
// returning values ready for direct ordered comparison (same Kind on both
// sides). TextCasefold additionally lowercases both operands rather than
// converting Kind, since casefolding is a transform, not a widening.
func coerce(fieldKind key.Kind, rowValue, operand key.Value, spec CoercionSpec) (key.Value, key.Value, error) {
	switch spec.ID {
	case CoercionStrict, "":
		if rowValue.Kind != operand.Kind {
			return key.Value{}, key.Value{}, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
				"strict comparison requires matching kinds, field is %s but literal is %s", rowValue.Kind, operand.Kind)
		}
		return rowValue, operand, nil

	case CoercionNumericWiden:
		return widenNumeric(rowValue, operand)

	case CoercionTextCasefold:
		if rowValue.Kind != key.KindText || operand.Kind != key.KindText {
			return key.Value{}, key.Value{}, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
				"text casefold coercion requires both sides to be Text, got %s/%s", rowValue.Kind, operand.Kind)
		}
		return key.Text(strings.ToLower(rowValue.Text)), key.Text(strings.ToLower(operand.Text)), nil

	case CoercionCollectionElement:
		// Handled structurally by the caller (AnyIn/AllIn over List/Set
		// elements); by the time a single element pair reaches coerce, it
		// degrades to a Strict/NumericWiden comparison of that element.
		if rowValue.Kind != operand.Kind {
			return widenNumeric(rowValue, operand)
		}
		return rowValue, operand, nil

	default:
		return key.Value{}, key.Value{}, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginQuery,
			"unknown coercion id %q", spec.ID)
	}
}

// widenNumeric converts both a and b to BigInt values, whatever their
// integer kinds. Non-numeric kinds are rejected.
func widenNumeric(a, b key.Value) (key.Value, key.Value, error) {
	av, aok := toBigInt(a)
	bv, bok := toBigInt(b)
	if !aok || !bok {
		return key.Value{}, key.Value{}, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
			"numeric widening requires numeric kinds, got %s/%s", a.Kind, b.Kind)
	}
	// Represent both sides as BigInt for the comparison; comparison logic
	// compares encoded bytes of matching Kind, so coercing both to the
	// same BigInt representation is always safe and exact for integers.
	return key.BigInt(av), key.BigInt(bv), nil
}

func toBigInt(v key.Value) (*big.Int, bool) {
	switch v.Kind {
	case key.KindInt:
		return big.NewInt(v.Int), true
	case key.KindUint:
		return new(big.Int).SetUint64(v.Uint), true
	case key.KindInt128:
		if v.Int128 == nil {
			return nil, false
		}
		return v.Int128, true
	case key.KindUint128:
		if v.Uint128 == nil {
			return nil, false
		}
		return v.Uint128.ToBig(), true
	case key.KindBigInt:
		if v.BigInt == nil {
			return nil, false
		}
		return v.BigInt, true
	default:
		return nil, false
	}
}
