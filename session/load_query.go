package session

import (
	"github.com/sirupsen/logrus"

	"github.com/icydb/icydb/internal/cursor"
	"github.com/icydb/icydb/internal/exec"
	"github.com/icydb/icydb/internal/plan"
	"github.com/icydb/icydb/internal/predicate"
	"github.com/icydb/icydb/internal/row"
	"github.com/icydb/icydb/internal/schema"
)

// Session issues load/save/delete operations against a Db.
type Session struct {
	db *Db
}

// LoadQuery is the fluent builder for a ModeLoad operation: entity,
// predicate, order, pagination and a caller-supplied access plan (spec.md
// §6's "session.load::<E>()..." surface). IcyDB's planner/cost-based
// access-path selection is a distinct concern from this façade: the access
// plan defaults to a full scan, and Access replaces it.
type LoadQuery struct {
	session    *Session
	model      *schema.EntityModel
	plan       plan.LogicalPlan
	accessPlan plan.AccessPlan
	token      *cursor.ContinuationToken
}

// Load starts a load query over model.
func (s *Session) Load(model *schema.EntityModel) *LoadQuery {
	return &LoadQuery{
		session: s,
		model:   model,
		plan: plan.LogicalPlan{
			Entity:      model.Name,
			Mode:        plan.ModeLoad,
			Consistency: plan.Strict,
		},
		accessPlan: plan.AccessPlan{Kind: plan.AccessPathNode, Path: plan.AccessPath{Kind: plan.PathFullScan}},
	}
}

// Where attaches a residual predicate.
func (q *LoadQuery) Where(node predicate.Node) *LoadQuery {
	q.plan.Predicate = &node
	return q
}

// OrderBy sets the order spec, which must end with the primary-key field
// (enforced at Rows()-time by plan.LogicalPlan.Validate).
func (q *LoadQuery) OrderBy(terms ...plan.OrderTerm) *LoadQuery {
	q.plan.Order = terms
	return q
}

// Paginate requests an offset/limit window.
func (q *LoadQuery) Paginate(offset, limit uint32) *LoadQuery {
	q.plan.Page = &plan.Page{Offset: offset, Limit: &limit}
	return q
}

// Distinct requests duplicate-row suppression.
func (q *LoadQuery) Distinct() *LoadQuery {
	q.plan.Distinct = true
	return q
}

// MissingOk relaxes materialization consistency: an index entry pointing
// at a now-absent row is silently skipped rather than surfaced as
// Corruption.
func (q *LoadQuery) MissingOk() *LoadQuery {
	q.plan.Consistency = plan.MissingOk
	return q
}

// Access sets the resolved AccessPlan this query executes against.
func (q *LoadQuery) Access(ap plan.AccessPlan) *LoadQuery {
	q.accessPlan = ap
	return q
}

// Resume continues a previously-issued page from token.
func (q *LoadQuery) Resume(token *cursor.ContinuationToken) *LoadQuery {
	q.token = token
	return q
}

// Fingerprint exposes this query's plan-fingerprint signature, the value a
// client can compare across requests to detect a query shape change
// without decoding a continuation token (spec.md §6).
func (q *LoadQuery) Fingerprint() [32]byte {
	return cursor.Fingerprint(q.plan, exec.AccessShapeOf(q.accessPlan))
}

// Explain renders a short human-readable description of the resolved
// access plan (spec.md §6's "explain" surface).
func (q *LoadQuery) Explain() string {
	return exec.AccessShapeOf(q.accessPlan)
}

// Rows executes the query, returning this page's rows and, if the result
// overflowed the requested page, a continuation token for the next one.
func (q *LoadQuery) Rows() ([]row.Row, *cursor.ContinuationToken, error) {
	le := exec.NewLoadExecutor(q.session.db.Registry, q.model)
	result, err := le.Execute(q.plan, q.accessPlan, q.token)
	if err != nil {
		return nil, nil, err
	}
	if m := q.session.db.Metrics; m != nil {
		m.LoadQueriesTotal.WithLabelValues(exec.AccessShapeOf(q.accessPlan)).Inc()
	}
	q.session.db.Log.WithFields(logrus.Fields{
		"entity":       q.model.Name,
		"access_shape": exec.AccessShapeOf(q.accessPlan),
		"rows":         len(result.Rows),
	}).Debug("load executed")
	return result.Rows, result.Continuation, nil
}

// Aggregate evaluates spec over this query's matching rows (non-streaming:
// every matching row is materialized first, per spec.md §4.13's default
// execution path for terminals without a pushdown-eligible access shape).
func (q *LoadQuery) Aggregate(spec exec.AggregateSpec) (exec.AggregateResult, error) {
	rows, _, err := q.Rows()
	if err != nil {
		return exec.AggregateResult{}, err
	}
	return exec.Evaluate(spec, rows)
}

// First returns the first row of this query's ordered result, if any.
func (q *LoadQuery) First() (row.Row, bool, error) {
	rows, _, err := q.Rows()
	if err != nil {
		return row.Row{}, false, err
	}
	r, ok := exec.FirstRow(rows)
	return r, ok, nil
}

// Last returns the last row of this query's ordered result, if any.
func (q *LoadQuery) Last() (row.Row, bool, error) {
	rows, _, err := q.Rows()
	if err != nil {
		return row.Row{}, false, err
	}
	r, ok := exec.LastRow(rows)
	return r, ok, nil
}

// GroupBy evaluates a grouped-aggregate plan over this query's matching
// rows (spec.md §4.13: grouped plans are always fully materialized).
func (q *LoadQuery) GroupBy(groupFields []string, aggregates []exec.AggregateSpec) ([]exec.GroupResult, error) {
	rows, _, err := q.Rows()
	if err != nil {
		return nil, err
	}
	gp := exec.GroupedPlan{GroupFields: groupFields, Aggregates: aggregates, Execution: exec.DefaultExecutionConfig()}
	return exec.EvaluateGrouped(rows, gp, q.model)
}
