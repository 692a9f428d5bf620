package exec

import (
	"github.com/icydb/icydb/internal/commit"
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/plan"
	"github.com/icydb/icydb/internal/relation"
	"github.com/icydb/icydb/internal/row"
	"github.com/icydb/icydb/internal/schema"
	"github.com/icydb/icydb/internal/store"

	icyerrors "github.com/icydb/icydb/errors"
)

// DeleteExecutor resolves a ModeDelete LogicalPlan: identify victim rows via
// a bounded load, block the delete if any strong relation still references
// one of them, then commit the row and index removals through a single
// marker (spec.md §4.14).
type DeleteExecutor struct {
	Registry    *store.StoreRegistry
	Model       *schema.EntityModel
	CommitStore *commit.Store
	Relations   []relation.Reverse // strong relations that target this entity
}

// NewDeleteExecutor constructs a DeleteExecutor for model, guarded by
// relations (reverse relations from other entities pointing at model).
func NewDeleteExecutor(reg *store.StoreRegistry, model *schema.EntityModel, cs *commit.Store, relations []relation.Reverse) *DeleteExecutor {
	return &DeleteExecutor{Registry: reg, Model: model, CommitStore: cs, Relations: relations}
}

// DeleteResult reports the rows actually removed.
type DeleteResult struct {
	DeletedKeys []key.Value
}

// Execute runs p (a ModeDelete plan) against accessPlan, deleting every
// matching row once every strong-relation check passes for the whole
// victim set.
func (e *DeleteExecutor) Execute(p plan.LogicalPlan, accessPlan plan.AccessPlan) (DeleteResult, error) {
	if p.Mode != plan.ModeDelete {
		return DeleteResult{}, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginExecutor,
			"DeleteExecutor received a plan of mode %d", p.Mode)
	}
	if err := p.Validate(e.Model); err != nil {
		return DeleteResult{}, err
	}

	ds, err := e.Registry.TryGetDataStore(p.Entity)
	if err != nil {
		return DeleteResult{}, err
	}

	loader := &LoadExecutor{Registry: e.Registry, Model: e.Model}
	stream, err := loader.buildKeyStream(accessPlan, nil)
	if err != nil {
		return DeleteResult{}, err
	}
	rows, err := RowsFromOrderedKeyStream(ds, stream, p.Consistency)
	if err != nil {
		return DeleteResult{}, err
	}
	if err := ValidateConsistentEntity(rows, e.Model); err != nil {
		return DeleteResult{}, err
	}
	rows, err = ApplyPredicateFilter(rows, p.Predicate, e.Model)
	if err != nil {
		return DeleteResult{}, err
	}
	if len(p.Order) > 0 {
		if err := ApplyOrder(rows, p.Order); err != nil {
			return DeleteResult{}, err
		}
	}
	if p.DeleteLimit != nil && uint32(len(rows)) > *p.DeleteLimit {
		rows = rows[:*p.DeleteLimit]
	}

	if len(rows) == 0 {
		return DeleteResult{}, nil
	}

	if err := e.checkRelations(rows); err != nil {
		return DeleteResult{}, err
	}

	marker, err := e.prepareMarker(rows)
	if err != nil {
		return DeleteResult{}, err
	}

	guard, err := commit.BeginCommit(e.CommitStore, marker)
	if err != nil {
		return DeleteResult{}, err
	}
	if err := guard.Apply(e.Registry); err != nil {
		return DeleteResult{}, err
	}
	commit.FinishCommit(guard)

	keys := make([]key.Value, 0, len(rows))
	for _, r := range rows {
		pk, err := r.PrimaryKey(e.Model)
		if err != nil {
			return DeleteResult{}, err
		}
		keys = append(keys, pk)
	}
	return DeleteResult{DeletedKeys: keys}, nil
}

// checkRelations blocks the delete if any strong relation still references
// any victim row.
func (e *DeleteExecutor) checkRelations(rows []row.Row) error {
	if len(e.Relations) == 0 {
		return nil
	}
	for _, r := range rows {
		pk, err := r.PrimaryKey(e.Model)
		if err != nil {
			return err
		}
		violations, err := relation.ValidateDeleteStrongRelations(e.Model.Name, pk, e.Relations)
		if err != nil {
			return err
		}
		if len(violations) > 0 {
			v := violations[0]
			return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginExecutor,
				"cannot delete %s %v: still referenced by %s.%s (%v)",
				e.Model.Name, pk, v.SourceEntity, v.SourceField, v.SourceKey)
		}
	}
	return nil
}

// prepareMarker builds the single marker recording every row and index op
// this delete requires.
func (e *DeleteExecutor) prepareMarker(rows []row.Row) (commit.Marker, error) {
	var dataOps []commit.DataOp
	var indexOps []commit.IndexOp

	for _, r := range rows {
		pk, err := r.PrimaryKey(e.Model)
		if err != nil {
			return commit.Marker{}, err
		}
		dataOp, err := commit.NewDeleteDataOp(e.Model.Name, pk)
		if err != nil {
			return commit.Marker{}, err
		}
		dataOps = append(dataOps, dataOp)

		for _, idx := range e.Model.Indexes {
			components, err := componentsFor(idx, r.Fields)
			if err != nil {
				return commit.Marker{}, err
			}
			op, err := commit.NewIndexOp(e.Model.Name, idx.Name, components, pk, false)
			if err != nil {
				return commit.Marker{}, err
			}
			indexOps = append(indexOps, op)
		}
	}

	id, err := commit.NewMarkerID()
	if err != nil {
		return commit.Marker{}, err
	}
	return commit.Marker{ID: id, Kind: commit.KindDelete, DataOps: dataOps, IndexOps: indexOps}, nil
}
