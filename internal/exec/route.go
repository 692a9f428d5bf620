package exec

import (
	"github.com/icydb/icydb/internal/plan"

	icyerrors "github.com/icydb/icydb/errors"
)

// RouteKind tags which fast path a VerifiedRoute certifies.
type RouteKind int

const (
	RoutePK RouteKind = iota
	RouteIndexOrdered
	RouteIndexRangePushdown
	RouteFallback
)

// VerifiedRoute is a typed marker proving a route decision has already been
// made. Its zero value is never produced outside VerifyRoute, so the
// executor cannot branch into a fast path without first holding one
// (spec.md §4.14: "the system must not branch into a fast path without
// this marker").
type VerifiedRoute struct {
	kind     RouteKind
	verified bool
}

// Kind returns the route this marker certifies. Calling it on an
// unverified (zero-value) marker is an invariant violation.
func (v VerifiedRoute) Kind() (RouteKind, error) {
	if !v.verified {
		return 0, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginExecutor,
			"route kind read from an unverified route marker")
	}
	return v.kind, nil
}

// VerifyRoute inspects path and certifies which fast path applies, in the
// preference order spec.md §4.14 lists: PK-ordered stream, secondary-index
// ordered stream, index-range limit pushdown, fallback full access-plan
// stream.
func VerifyRoute(path plan.AccessPath) VerifiedRoute {
	switch path.Kind {
	case plan.PathByKey, plan.PathByKeys, plan.PathKeyRange:
		return VerifiedRoute{kind: RoutePK, verified: true}
	case plan.PathIndexPrefix:
		return VerifiedRoute{kind: RouteIndexOrdered, verified: true}
	case plan.PathIndexRange:
		return VerifiedRoute{kind: RouteIndexRangePushdown, verified: true}
	default:
		return VerifiedRoute{kind: RouteFallback, verified: true}
	}
}
