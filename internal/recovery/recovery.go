// Package recovery implements IcyDB's startup recovery sequence
// (spec.md §4.6): replay any pending commit marker (idempotent with a live
// commit's own apply path), then rebuild every secondary index from the
// authoritative primary rows. Recovery is fail-closed: an index rebuild
// failure leaves the previous index state in place rather than a
// half-rebuilt one.
package recovery

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/icydb/icydb/internal/commit"
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/row"
	"github.com/icydb/icydb/internal/store"

	icyerrors "github.com/icydb/icydb/errors"
)

// IndexBuilder extracts the ordered component values an index needs from a
// decoded row, returning (components, ok) where ok is false if the row does
// not participate in this index (e.g. an optional indexed field is absent).
type IndexBuilder func(r row.Row) (components []key.Value, ok bool)

// EntityIndexes maps each declared index name to its component builder.
type EntityIndexes map[string]IndexBuilder

// Recovery coordinates the one-time startup recovery sequence.
type Recovery struct {
	group       singleflight.Group
	commitStore *commit.Store
	registry    *store.StoreRegistry
	indexes     map[string]EntityIndexes // entity -> index name -> builder

	mu   sync.Mutex
	done bool // set once a recovery run has succeeded
}

// New constructs a Recovery coordinator.
func New(cs *commit.Store, reg *store.StoreRegistry) *Recovery {
	return &Recovery{commitStore: cs, registry: reg, indexes: make(map[string]EntityIndexes)}
}

// RegisterIndexBuilders installs the index component builders for one
// entity, used during the rebuild phase. Must be called before the first
// EnsureRecovered for that entity's indexes to be rebuilt.
func (r *Recovery) RegisterIndexBuilders(entity string, builders EntityIndexes) {
	r.indexes[entity] = builders
}

// EnsureRecovered runs the recovery sequence exactly once even under
// concurrent callers (golang.org/x/sync/singleflight collapses concurrent
// calls into a single execution, so e.g. two query paths racing to trigger
// lazy recovery do not redundantly rebuild indexes twice). Once a run has
// succeeded, later calls return nil without running again; a failed run is
// retried by the next call.
func (r *Recovery) EnsureRecovered() error {
	_, err, _ := r.group.Do("recover", func() (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.done {
			return nil, nil
		}
		if err := r.run(); err != nil {
			return nil, err
		}
		r.done = true
		return nil, nil
	})
	return err
}

func (r *Recovery) run() error {
	if marker, ok := r.commitStore.Load(); ok {
		guard := commit.ResumeCommit(r.commitStore, marker)
		if err := guard.Apply(r.registry); err != nil {
			return icyerrors.Newf(icyerrors.ClassCorruption, icyerrors.OriginStore,
				"recovery: failed to replay pending commit marker %q: %v", marker.ID, err)
		}
		commit.FinishCommit(guard)
	}

	return r.rebuildIndexes()
}

// rebuildIndexes recomputes every registered entity's secondary indexes from
// its authoritative primary rows. Each entity's indexes are rebuilt into
// fresh IndexStores and only swapped in once the full rebuild for that
// entity succeeds, so a failure partway through never leaves a half-built
// index live (fail-closed per spec.md §4.6).
func (r *Recovery) rebuildIndexes() error {
	for _, entity := range r.registry.Entities() {
		builders, ok := r.indexes[entity]
		if !ok {
			continue
		}
		ds, err := r.registry.TryGetDataStore(entity)
		if err != nil {
			return err
		}
		rows, err := ds.Iter()
		if err != nil {
			return icyerrors.StoreCorruptionf("recovery: failed reading rows of entity %q: %v", entity, err)
		}

		staged := make(map[string]*store.IndexStore, len(builders))
		for indexName := range builders {
			is, err := r.registry.TryGetIndexStore(entity, indexName)
			if err != nil {
				return err
			}
			staged[indexName] = store.NewIndexStore(is.IndexID, is.Kind == key.IndexKeyUnique)
		}

		for indexName, builder := range builders {
			target := staged[indexName]
			for _, rr := range rows {
				components, ok := builder(rr)
				if !ok {
					continue
				}
				pk, err := rr.PrimaryKey(ds.Model)
				if err != nil {
					return icyerrors.StoreCorruptionf(
						"recovery: entity %q index %q: %v", entity, indexName, err)
				}
				if err := target.Insert(components, pk); err != nil {
					return icyerrors.Newf(icyerrors.ClassCorruption, icyerrors.OriginIndex,
						"recovery: entity %q index %q: rebuild failed: %v", entity, indexName, err)
				}
			}
		}

		for indexName, target := range staged {
			if err := r.registry.ReplaceIndexStore(entity, indexName, target); err != nil {
				return err
			}
		}
	}
	return nil
}
