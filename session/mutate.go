package session

import (
	"github.com/sirupsen/logrus"

	"github.com/icydb/icydb/internal/commit"
	"github.com/icydb/icydb/internal/exec"
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/plan"
	"github.com/icydb/icydb/internal/schema"
)

// Save upserts fields into model, keyed by model's primary key field
// (spec.md §6's "session.save::<E>(fields)").
func (s *Session) Save(model *schema.EntityModel, fields map[string]key.Value) (exec.SaveResult, error) {
	timer := newTimer()
	se := exec.NewSaveExecutor(s.db.Registry, model, s.db.CommitStore)
	result, err := se.Execute(fields)
	s.observeCommit(commit.KindSave, timer(), err)
	if err != nil {
		return exec.SaveResult{}, err
	}
	s.db.Log.WithFields(logrus.Fields{
		"entity":   model.Name,
		"inserted": result.Inserted,
	}).Debug("save executed")
	if m := s.db.Metrics; m != nil {
		m.RowsUpsertedTotal.Inc()
		for _, idx := range model.Indexes {
			m.IndexOpsTotal.WithLabelValues(model.Name, idx.Name).Inc()
		}
	}
	return result, nil
}

// Delete runs a ModeDelete plan against accessPlan, blocked by any strong
// relation still registered against model (spec.md §6's
// "session.delete::<E>(...)"). The relations guarding model must have been
// declared beforehand via Db.RegisterStrongRelation.
func (s *Session) Delete(model *schema.EntityModel, p plan.LogicalPlan, accessPlan plan.AccessPlan) (exec.DeleteResult, error) {
	timer := newTimer()
	de := exec.NewDeleteExecutor(s.db.Registry, model, s.db.CommitStore, s.db.relations[model.Name])
	result, err := de.Execute(p, accessPlan)
	s.observeCommit(commit.KindDelete, timer(), err)
	if err != nil {
		return exec.DeleteResult{}, err
	}
	s.db.Log.WithFields(logrus.Fields{
		"entity":  model.Name,
		"deleted": len(result.DeletedKeys),
	}).Debug("delete executed")
	if m := s.db.Metrics; m != nil && len(result.DeletedKeys) > 0 {
		m.RowsDeletedTotal.Add(float64(len(result.DeletedKeys)))
		for _, idx := range model.Indexes {
			m.IndexOpsTotal.WithLabelValues(model.Name, idx.Name).Add(float64(len(result.DeletedKeys)))
		}
	}
	return result, nil
}

// observeCommit records a successful commit's kind and duration; a failed
// attempt records nothing.
func (s *Session) observeCommit(kind commit.Kind, seconds float64, err error) {
	m := s.db.Metrics
	if m == nil {
		return
	}
	if err == nil {
		m.CommitsTotal.WithLabelValues(string(kind)).Inc()
		m.CommitDurationSeconds.Observe(seconds)
	}
}
