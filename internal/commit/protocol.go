package commit

import (
	"github.com/icydb/icydb/internal/store"

	icyerrors "github.com/icydb/icydb/errors"
)

// Guard represents one in-flight commit window: a marker has been
// persisted (begin_commit) and the store mutations it describes are about
// to be applied. All fallible work - schema/predicate validation, relation
// checks, encoding - must have already happened before BeginCommit; Apply
// and FinishCommit are expected to be straight-line and infallible
// (spec.md §4.5).
type Guard struct {
	store  *Store
	marker Marker
}

// BeginCommit persists marker and opens the commit window. This is the last
// fallible step of a commit: marker encoding/size-limit checks happen here,
// before any store mutation is attempted.
func BeginCommit(cs *Store, marker Marker) (*Guard, error) {
	if err := cs.set(marker); err != nil {
		return nil, err
	}
	return &Guard{store: cs, marker: marker}, nil
}

// ResumeCommit wraps an already-persisted marker (found on disk by
// recovery) in a Guard without re-persisting it, so recovery can replay
// Apply/FinishCommit through the identical code path a live commit uses
// (spec.md §4.6: replay must be idempotent with a normal commit).
func ResumeCommit(cs *Store, marker Marker) *Guard {
	return &Guard{store: cs, marker: marker}
}

// Marker returns the marker this guard opened the commit window with.
func (g *Guard) Marker() Marker {
	return g.marker
}

// Apply performs every mutation recorded in the guard's marker against reg.
// Any error here indicates a bug upstream of BeginCommit (an operation was
// recorded that the store layer cannot actually perform), so failures are
// surfaced as InvariantViolation rather than a routine error class.
func (g *Guard) Apply(reg *store.StoreRegistry) error {
	return applyMarker(reg, g.marker)
}

// FinishCommit clears the marker unconditionally, closing the commit
// window. Never fails (spec.md §4.5, §9): clearing the marker must not be
// the reason a commit cannot complete.
func FinishCommit(g *Guard) {
	g.store.ClearInfallible()
}

func applyMarker(reg *store.StoreRegistry, m Marker) error {
	for i, op := range m.IndexOps {
		is, err := reg.TryGetIndexStore(op.Entity, op.IndexName)
		if err != nil {
			return wrapApplyErr("index op", i, err)
		}
		components, err := op.DecodedComponents()
		if err != nil {
			return wrapApplyErr("index op", i, err)
		}
		pk, err := op.DecodedKey()
		if err != nil {
			return wrapApplyErr("index op", i, err)
		}
		if op.Insert {
			if err := is.Insert(components, pk); err != nil {
				return wrapApplyErr("index op", i, err)
			}
		} else {
			if _, err := is.Remove(components, pk); err != nil {
				return wrapApplyErr("index op", i, err)
			}
		}
	}

	for i, op := range m.DataOps {
		ds, err := reg.TryGetDataStore(op.Entity)
		if err != nil {
			return wrapApplyErr("data op", i, err)
		}
		pk, err := op.DecodedKey()
		if err != nil {
			return wrapApplyErr("data op", i, err)
		}
		if op.Insert {
			fields, err := op.DecodedFields()
			if err != nil {
				return wrapApplyErr("data op", i, err)
			}
			if err := ds.Insert(pk, fields); err != nil {
				return wrapApplyErr("data op", i, err)
			}
		} else {
			if _, err := ds.Remove(pk); err != nil {
				return wrapApplyErr("data op", i, err)
			}
		}
	}
	return nil
}

func wrapApplyErr(kind string, index int, err error) error {
	return icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginStore,
		"commit apply: %s %d failed despite pre-commit validation: %v", kind, index, err)
}
