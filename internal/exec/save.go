package exec

import (
	"bytes"

	"github.com/icydb/icydb/internal/commit"
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/schema"
	"github.com/icydb/icydb/internal/store"

	icyerrors "github.com/icydb/icydb/errors"
)

// SaveExecutor performs an insert/upsert of one row: prepare every data and
// index mutation, detect unique-index collisions, then commit the whole
// batch through a single marker (spec.md §4.14). All fallible work happens
// before the commit window opens.
type SaveExecutor struct {
	Registry    *store.StoreRegistry
	Model       *schema.EntityModel
	CommitStore *commit.Store
}

// NewSaveExecutor constructs a SaveExecutor for model.
func NewSaveExecutor(reg *store.StoreRegistry, model *schema.EntityModel, cs *commit.Store) *SaveExecutor {
	return &SaveExecutor{Registry: reg, Model: model, CommitStore: cs}
}

// SaveResult reports the outcome of one save.
type SaveResult struct {
	PrimaryKey key.Value
	Inserted   bool // false means an existing row was overwritten
}

// Execute upserts fields, keyed by model's primary key field.
func (e *SaveExecutor) Execute(fields map[string]key.Value) (SaveResult, error) {
	pk, ok := fields[e.Model.PrimaryKeyField]
	if !ok {
		return SaveResult{}, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginExecutor,
			"save of entity %q is missing its primary key field %q", e.Model.Name, e.Model.PrimaryKeyField)
	}

	ds, err := e.Registry.TryGetDataStore(e.Model.Name)
	if err != nil {
		return SaveResult{}, err
	}
	oldRow, hadOld, err := ds.Get(pk)
	if err != nil {
		return SaveResult{}, err
	}

	dataOp, err := commit.NewUpsertDataOp(e.Model.Name, pk, fields)
	if err != nil {
		return SaveResult{}, err
	}

	indexOps, err := e.prepareIndexOps(pk, fields, oldRow.Fields, hadOld)
	if err != nil {
		return SaveResult{}, err
	}

	id, err := commit.NewMarkerID()
	if err != nil {
		return SaveResult{}, err
	}
	marker := commit.Marker{ID: id, Kind: commit.KindSave, DataOps: []commit.DataOp{dataOp}, IndexOps: indexOps}

	guard, err := commit.BeginCommit(e.CommitStore, marker)
	if err != nil {
		return SaveResult{}, err
	}
	if err := guard.Apply(e.Registry); err != nil {
		return SaveResult{}, err
	}
	commit.FinishCommit(guard)

	return SaveResult{PrimaryKey: pk, Inserted: !hadOld}, nil
}

// prepareIndexOps computes every index mutation this save requires,
// rejecting unique-index collisions before any op is recorded. An index
// whose component values are unchanged from the old row contributes no op
// at all (spec.md §4.1: index maintenance only touches buckets that
// actually change).
func (e *SaveExecutor) prepareIndexOps(pk key.Value, newFields, oldFields map[string]key.Value, hadOld bool) ([]commit.IndexOp, error) {
	var ops []commit.IndexOp
	for _, idx := range e.Model.Indexes {
		newComponents, err := componentsFor(idx, newFields)
		if err != nil {
			return nil, err
		}

		if hadOld {
			oldComponents, err := componentsFor(idx, oldFields)
			if err != nil {
				return nil, err
			}
			same, err := componentsEqual(oldComponents, newComponents)
			if err != nil {
				return nil, err
			}
			if same {
				continue
			}
			if err := e.checkUnique(idx, newComponents, pk); err != nil {
				return nil, err
			}
			removeOp, err := commit.NewIndexOp(e.Model.Name, idx.Name, oldComponents, pk, false)
			if err != nil {
				return nil, err
			}
			insertOp, err := commit.NewIndexOp(e.Model.Name, idx.Name, newComponents, pk, true)
			if err != nil {
				return nil, err
			}
			ops = append(ops, removeOp, insertOp)
			continue
		}

		if err := e.checkUnique(idx, newComponents, pk); err != nil {
			return nil, err
		}
		insertOp, err := commit.NewIndexOp(e.Model.Name, idx.Name, newComponents, pk, true)
		if err != nil {
			return nil, err
		}
		ops = append(ops, insertOp)
	}
	return ops, nil
}

// checkUnique rejects components that already map to a different primary
// key under a unique index.
func (e *SaveExecutor) checkUnique(idx schema.IndexModel, components []key.Value, pk key.Value) error {
	if !idx.Unique {
		return nil
	}
	is, err := e.Registry.TryGetIndexStore(e.Model.Name, idx.Name)
	if err != nil {
		return err
	}
	entry, found, err := is.Get(components)
	if err != nil || !found {
		return err
	}
	pkBytes, err := key.EncodeScalarKey(pk)
	if err != nil {
		return err
	}
	for _, existing := range entry.Keys {
		eb, err := key.EncodeScalarKey(existing)
		if err != nil {
			return err
		}
		if bytes.Equal(eb, pkBytes) {
			return nil // the same row already owns this bucket
		}
	}
	return icyerrors.Newf(icyerrors.ClassConflict, icyerrors.OriginIndex,
		"unique index %q of entity %q already has an entry for these components", idx.Name, e.Model.Name)
}

func componentsFor(idx schema.IndexModel, fields map[string]key.Value) ([]key.Value, error) {
	out := make([]key.Value, 0, len(idx.Fields))
	for _, f := range idx.Fields {
		v, ok := fields[f]
		if !ok {
			return nil, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginExecutor,
				"row is missing field %q required by index %q", f, idx.Name)
		}
		out = append(out, v)
	}
	return out, nil
}

func componentsEqual(a, b []key.Value) (bool, error) {
	if len(a) != len(b) {
		return false, nil
	}
	for i := range a {
		ab, err := key.EncodeOrderedComponent(a[i])
		if err != nil {
			return false, err
		}
		bb, err := key.EncodeOrderedComponent(b[i])
		if err != nil {
			return false, err
		}
		if !bytes.Equal(ab, bb) {
			return false, nil
		}
	}
	return true, nil
}
