// Package session implements the fluent query/session façade: Db owns the
// registry, commit store and recovery coordinator; Session issues
// load/save/delete operations against them (spec.md §6, "public query
// API"). Structured logging follows the teacher's logrus convention:
// field-keyed entries rather than formatted strings.
package session

import (
	"github.com/sirupsen/logrus"

	"github.com/icydb/icydb/internal/commit"
	"github.com/icydb/icydb/internal/diag"
	"github.com/icydb/icydb/internal/recovery"
	"github.com/icydb/icydb/internal/relation"
	"github.com/icydb/icydb/internal/schema"
	"github.com/icydb/icydb/internal/store"
)

// Db is one IcyDB instance: the store registry, the single commit marker
// store, the recovery coordinator, and the diagnostics/metrics handles
// shared by every session opened against it.
type Db struct {
	Registry    *store.StoreRegistry
	CommitStore *commit.Store
	Recovery    *recovery.Recovery
	Metrics     *diag.Metrics
	Log         *logrus.Logger

	relations map[string][]relation.Reverse // target entity -> reverse relations pointing at it
}

// New constructs an empty Db. metrics may be nil (metrics are optional
// diagnostics, never load-bearing for correctness); log may be nil, in
// which case logrus.StandardLogger() is used.
func New(metrics *diag.Metrics, log *logrus.Logger) *Db {
	if log == nil {
		log = logrus.StandardLogger()
	}
	reg := store.NewStoreRegistry()
	cs := commit.NewStore()
	return &Db{
		Registry:    reg,
		CommitStore: cs,
		Recovery:    recovery.New(cs, reg),
		Metrics:     metrics,
		Log:         log,
		relations:   make(map[string][]relation.Reverse),
	}
}

// RegisterEntity registers model's data and index stores, logging the
// registration the way the teacher logs subsystem startup: one structured
// line per step, not a formatted sentence.
func (d *Db) RegisterEntity(model *schema.EntityModel) (*store.DataStore, error) {
	ds, err := d.Registry.RegisterEntity(model)
	if err != nil {
		return nil, err
	}
	d.Log.WithFields(logrus.Fields{
		"entity":  model.Name,
		"indexes": len(model.Indexes),
	}).Info("entity registered")
	return ds, nil
}

// RegisterStrongRelation declares that sourceEntity.sourceField is a strong
// reference into targetEntity, backed by reverseIndex and sourceStore.
// DeleteExecutor consults these before removing a row of targetEntity.
func (d *Db) RegisterStrongRelation(targetEntity string, rel relation.Reverse) {
	d.relations[targetEntity] = append(d.relations[targetEntity], rel)
}

// EnsureRecovered runs the startup recovery sequence exactly once, timing
// it into Metrics.RecoveryDurationSeconds when metrics are attached.
func (d *Db) EnsureRecovered() error {
	if d.Metrics == nil {
		return d.Recovery.EnsureRecovered()
	}
	timer := newTimer()
	err := d.Recovery.EnsureRecovered()
	d.Metrics.RecoveryDurationSeconds.Observe(timer())
	return err
}

// StorageReport builds a read-only diagnostics snapshot of every registered
// store (spec.md §6's diagnostics interface).
func (d *Db) StorageReport() (diag.StorageReport, error) {
	if d.Metrics == nil {
		return diag.BuildStorageReport(d.Registry)
	}
	timer := newTimer()
	report, err := diag.BuildStorageReport(d.Registry)
	d.Metrics.StorageReportDurationSeconds.Observe(timer())
	return report, err
}

// Session opens a new session against d. Sessions are cheap and
// stateless; callers typically open one per logical operation.
func (d *Db) Session() *Session {
	return &Session{db: d}
}
