// Package plan implements the logical/physical query plan: LogicalPlan,
// AccessPlan/AccessPath, their validation rules, and the lowering of
// semantic index access into raw component bounds the index store can
// resolve directly (spec.md §4.11).
package plan

import (
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/predicate"
	"github.com/icydb/icydb/internal/schema"

	icyerrors "github.com/icydb/icydb/errors"
)

// Mode selects which executor a LogicalPlan targets.
type Mode int

const (
	ModeLoad Mode = iota
	ModeSave
	ModeDelete
)

// SortDirection orders one OrderSpec term.
type SortDirection int

const (
	Asc SortDirection = iota
	Desc
)

// OrderTerm is one (field, direction) pair of an OrderSpec.
type OrderTerm struct {
	Field     string
	Direction SortDirection
}

// Consistency controls how LoadExecutor materialization treats a primary
// key resolved by an index entry but absent from the data store.
type Consistency int

const (
	// Strict surfaces a missing row as Corruption (spec.md §4.13).
	Strict Consistency = iota
	// MissingOk silently skips a missing row.
	MissingOk
)

// Page describes an offset/limit window over an ordered result.
type Page struct {
	Offset uint32
	Limit  *uint32
}

// LogicalPlan is the mode-agnostic shape every session operation compiles
// to before access-path selection (spec.md §4.11).
type LogicalPlan struct {
	Entity      string
	Mode        Mode
	Predicate   *predicate.Node
	Order       []OrderTerm // must end with the primary-key field when non-empty
	Distinct    bool
	DeleteLimit *uint32
	Page        *Page
	Consistency Consistency
}

// Validate enforces spec.md §4.11's plan-shape rules against model.
func (p LogicalPlan) Validate(model *schema.EntityModel) error {
	if len(p.Order) > 0 {
		seen := make(map[string]bool, len(p.Order))
		for _, term := range p.Order {
			f, ok := model.Field(term.Field)
			if !ok {
				return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
					"order_by references unknown field %q", term.Field)
			}
			if !f.Keyable {
				return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
					"order_by field %q is not orderable", term.Field)
			}
			if seen[term.Field] && term.Field != model.PrimaryKeyField {
				return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
					"order_by field %q repeated", term.Field)
			}
			seen[term.Field] = true
		}
		last := p.Order[len(p.Order)-1]
		if last.Field != model.PrimaryKeyField {
			return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
				"ordered plans must terminate with the primary key field %q, got %q",
				model.PrimaryKeyField, last.Field)
		}
	}

	if p.Mode == ModeDelete {
		if p.Page != nil {
			return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
				"delete plans do not support pagination")
		}
		if p.DeleteLimit != nil && len(p.Order) == 0 {
			return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
				"delete_limit requires an explicit order_by")
		}
	}

	if p.Page != nil && len(p.Order) == 0 {
		return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
			"pagination requires an explicit order_by (unordered pagination is refused)")
	}

	return nil
}

// AccessPathKind tags an AccessPath's variant.
type AccessPathKind int

const (
	PathByKey AccessPathKind = iota
	PathByKeys
	PathKeyRange
	PathIndexPrefix
	PathIndexRange
	PathFullScan
)

// AccessPath is one concrete way to source candidate primary keys.
type AccessPath struct {
	Kind AccessPathKind

	Key  key.Value   // ByKey
	Keys []key.Value // ByKeys

	RangeStart *key.Value // KeyRange; nil means unbounded
	RangeEnd   *key.Value

	IndexName string      // IndexPrefix / IndexRange
	Values    []key.Value // IndexPrefix: exact leading component values

	RangeLower []key.Value // IndexRange: lower component tuple, nil = unbounded
	RangeUpper []key.Value // IndexRange: upper component tuple, nil = unbounded

	Direction SortDirection
}

// AccessPlanKind tags an AccessPlan's variant.
type AccessPlanKind int

const (
	AccessPathNode AccessPlanKind = iota
	AccessUnion
	AccessIntersection
)

// AccessPlan composes AccessPaths via union/intersection (spec.md §4.11).
type AccessPlan struct {
	Kind     AccessPlanKind
	Path     AccessPath
	Children []AccessPlan // Union/Intersection
}

// LoweredRange is a semantic IndexPrefix/IndexRange access path reduced to
// the component-tuple bounds store.IndexStore.ResolveInRangeLimited expects
// directly — this engine's realization of spec.md §4.11's "raw-key bounds"
// lowering, since the raw RawIndexKey framing is an internal detail the
// index store itself owns (see store.IndexStore.componentPrefix).
type LoweredRange struct {
	IndexName string
	Lower     []key.Value // nil = unbounded below
	Upper     []key.Value // nil = unbounded above
	Direction SortDirection
}

// Lower reduces path to a LoweredRange. Only IndexPrefix and IndexRange are
// lowerable; any other AccessPathKind is a caller error (an executor
// invariant violation per spec.md §4.11 — "validated-but-unlowerable specs
// are an executor invariant violation").
func Lower(path AccessPath) (LoweredRange, error) {
	switch path.Kind {
	case PathIndexPrefix:
		return LoweredRange{
			IndexName: path.IndexName,
			Lower:     path.Values,
			Upper:     path.Values,
			Direction: path.Direction,
		}, nil
	case PathIndexRange:
		return LoweredRange{
			IndexName: path.IndexName,
			Lower:     path.RangeLower,
			Upper:     path.RangeUpper,
			Direction: path.Direction,
		}, nil
	default:
		return LoweredRange{}, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginExecutor,
			"access path kind %d has no raw-bound lowering", path.Kind)
	}
}
