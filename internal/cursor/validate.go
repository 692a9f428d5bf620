package cursor

import (
	"bytes"

	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/plan"

	icyerrors "github.com/icydb/icydb/errors"
)

// ExpectedIndex carries the index identity a resumed IndexRange access path
// must match, supplied by the caller (the executor already knows which
// index the plan's access path was lowered against).
type ExpectedIndex struct {
	IndexID uint32
	Kind    key.IndexKeyKind
	Arity   int
}

// Validate is the single shared cursor-spine gate run after decode and
// before materialization resumes (spec.md §4.12): signature match,
// direction match, initial-offset match, anchor presence iff the access
// path is IndexRange, anchor shape/envelope containment, and boundary-to-
// anchor primary-key equivalence.
func Validate(token ContinuationToken, p plan.LogicalPlan, accessPath plan.AccessPath, accessShape string, expectedIndex *ExpectedIndex) error {
	if token.Version != 1 {
		return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
			"unsupported continuation token version %d", token.Version)
	}

	want := Fingerprint(p, accessShape)
	if !bytes.Equal(want[:], token.Signature[:]) {
		return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
			"continuation token signature does not match the resolved plan")
	}

	expectedDirection := plan.Asc
	if len(p.Order) > 0 {
		expectedDirection = p.Order[0].Direction
	}
	if token.Direction != expectedDirection {
		return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
			"continuation token direction does not match the plan's order direction")
	}

	if p.Page != nil && token.InitialOffset != p.Page.Offset {
		return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
			"continuation token initial_offset does not match the plan's requested offset")
	}

	isIndexRange := accessPath.Kind == plan.PathIndexRange
	hasAnchor := token.IndexRangeAnchor != nil
	if isIndexRange != hasAnchor {
		return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
			"continuation token anchor presence does not match the access path (index_range=%v, has_anchor=%v)",
			isIndexRange, hasAnchor)
	}

	if hasAnchor {
		anchor := token.IndexRangeAnchor
		if expectedIndex != nil {
			if anchor.IndexID != expectedIndex.IndexID {
				return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
					"continuation token anchor index id %d does not match expected index id %d", anchor.IndexID, expectedIndex.IndexID)
			}
			if anchor.Kind != expectedIndex.Kind {
				return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
					"continuation token anchor kind does not match expected index kind")
			}
			if len(anchor.Components) != expectedIndex.Arity {
				return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
					"continuation token anchor arity %d does not match expected arity %d", len(anchor.Components), expectedIndex.Arity)
			}
		}
		if err := checkEnvelopeContainment(anchor, accessPath); err != nil {
			return err
		}
		if err := checkBoundaryPKEquivalence(token.Boundary, anchor.PrimaryKey); err != nil {
			return err
		}
	}

	return nil
}

// checkEnvelopeContainment verifies the anchor's leading components lie
// within the access path's declared component bounds, so a forged or
// stale anchor outside the query's own range is rejected rather than
// silently resuming from the wrong position.
func checkEnvelopeContainment(anchor *key.RawIndexKey, accessPath plan.AccessPath) error {
	within := func(bound []key.Value, wantLowerOrEqual bool) error {
		n := len(bound)
		if n == 0 || n > len(anchor.Components) {
			return nil
		}
		for i := 0; i < n; i++ {
			ab, err := key.EncodeOrderedComponent(anchor.Components[i])
			if err != nil {
				return err
			}
			bb, err := key.EncodeOrderedComponent(bound[i])
			if err != nil {
				return err
			}
			cmp := bytes.Compare(ab, bb)
			if wantLowerOrEqual && cmp < 0 {
				return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
					"continuation token anchor lies below the access path's lower bound")
			}
			if !wantLowerOrEqual && cmp > 0 {
				return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
					"continuation token anchor lies above the access path's upper bound")
			}
			if cmp != 0 {
				return nil // diverges before exhausting the bound prefix; containment established at this slot
			}
		}
		return nil
	}
	if err := within(accessPath.RangeLower, true); err != nil {
		return err
	}
	return within(accessPath.RangeUpper, false)
}

// checkBoundaryPKEquivalence verifies the resumed boundary's final (PK
// tie-break) slot equals the anchor's trailing primary key, the check that
// catches a boundary and anchor drawn from two different result pages.
func checkBoundaryPKEquivalence(boundary CursorBoundary, anchorPK key.Value) error {
	if len(boundary.Slots) == 0 {
		return icyerrors.New(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
			"continuation token boundary has no slots to compare against the anchor's primary key")
	}
	last := boundary.Slots[len(boundary.Slots)-1]
	if !last.Present {
		return icyerrors.New(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
			"continuation token boundary's primary-key slot is missing")
	}
	lb, err := key.EncodeScalarKey(last.Value)
	if err != nil {
		return err
	}
	ab, err := key.EncodeScalarKey(anchorPK)
	if err != nil {
		return err
	}
	if !bytes.Equal(lb, ab) {
		return icyerrors.New(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
			"continuation token boundary's primary key does not match its anchor's primary key")
	}
	return nil
}
