package exec

import (
	"bytes"
	"sort"

	"github.com/c2h5oh/datasize"

	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/plan"
	"github.com/icydb/icydb/internal/row"
	"github.com/icydb/icydb/internal/schema"

	icyerrors "github.com/icydb/icydb/errors"
)

// AggregateKind tags a terminal aggregate operation (spec.md §4.13/§6).
type AggregateKind int

const (
	AggCount AggregateKind = iota
	AggExists
	AggMin
	AggMax
	AggFirst
	AggLast
	AggMinBy
	AggMaxBy
	AggNthBy
	AggMedianBy
	AggMinMaxBy
	AggSumBy
	AggAvgBy
	AggCountDistinctBy
)

// AggregateSpec is one terminal aggregate request.
type AggregateSpec struct {
	Kind  AggregateKind
	Field string // Min, Max, and every *_By variant
	N     int    // NthBy
}

// AggregateResult carries whichever of its fields Kind produced.
type AggregateResult struct {
	Count    int64
	Exists   bool
	Value    *key.Value
	MinValue *key.Value
	MaxValue *key.Value
	Sum      float64
	Avg      float64
}

// FetchHint computes the physical bounded-probe size a route planner should
// request from the index before materializing, per spec.md §4.13 ("e.g.
// offset+1 for EXISTS/FIRST, offset+limit for LAST").
func FetchHint(kind AggregateKind, page *plan.Page) int {
	offset := 0
	limit := 1
	if page != nil {
		offset = int(page.Offset)
		if page.Limit != nil {
			limit = int(*page.Limit)
		}
	}
	switch kind {
	case AggExists, AggFirst:
		return offset + 1
	case AggLast:
		return offset + limit
	default:
		return 0 // unbounded: requires a full scan of the access shape
	}
}

// StreamingEligible reports whether kind can be answered by a streaming
// probe over accessShapeIsStreamingSafe without materializing every
// candidate row (spec.md §4.13: "COUNT is eligible only when the pushdown
// access shape supports it").
func StreamingEligible(kind AggregateKind, accessShapeIsStreamingSafe bool, hasResidualPredicate bool) bool {
	if hasResidualPredicate {
		return false
	}
	switch kind {
	case AggCount, AggExists, AggFirst, AggLast:
		return accessShapeIsStreamingSafe
	default:
		return false
	}
}

// Evaluate computes spec's terminal aggregate over rows, which the caller
// has already decoded/filtered/ordered per the post-access pipeline.
func Evaluate(spec AggregateSpec, rows []row.Row) (AggregateResult, error) {
	switch spec.Kind {
	case AggCount:
		return AggregateResult{Count: int64(len(rows))}, nil
	case AggExists:
		return AggregateResult{Exists: len(rows) > 0}, nil
	case AggMin:
		return extremumBy(rows, spec.Field, true)
	case AggMax:
		return extremumBy(rows, spec.Field, false)
	case AggFirst, AggLast:
		// First/Last are whole-row terminals, not field-scoped values; use
		// FirstRow/LastRow directly rather than Evaluate for these kinds.
		return AggregateResult{}, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginExecutor,
			"First/Last must be resolved via FirstRow/LastRow, not Evaluate")
	case AggMinBy:
		return extremumBy(rows, spec.Field, true)
	case AggMaxBy:
		return extremumBy(rows, spec.Field, false)
	case AggNthBy:
		return nthBy(rows, spec.Field, spec.N)
	case AggMedianBy:
		return medianBy(rows, spec.Field)
	case AggMinMaxBy:
		return minMaxBy(rows, spec.Field)
	case AggSumBy:
		return sumBy(rows, spec.Field)
	case AggAvgBy:
		return avgBy(rows, spec.Field)
	case AggCountDistinctBy:
		return countDistinctBy(rows, spec.Field)
	default:
		return AggregateResult{}, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginExecutor,
			"unknown aggregate kind %d", spec.Kind)
	}
}

// FirstRow returns the first row of an already-ordered result set.
func FirstRow(rows []row.Row) (row.Row, bool) {
	if len(rows) == 0 {
		return row.Row{}, false
	}
	return rows[0], true
}

// LastRow returns the last row of an already-ordered result set.
func LastRow(rows []row.Row) (row.Row, bool) {
	if len(rows) == 0 {
		return row.Row{}, false
	}
	return rows[len(rows)-1], true
}

func fieldValues(rows []row.Row, field string) ([]key.Value, error) {
	out := make([]key.Value, 0, len(rows))
	for _, r := range rows {
		v, ok := r.Fields[field]
		if !ok {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginExecutor,
			"field %q has no present values to aggregate", field)
	}
	return out, nil
}

func compareValues(a, b key.Value) (int, error) {
	ab, err := key.EncodeOrderedComponent(a)
	if err != nil {
		return 0, err
	}
	bb, err := key.EncodeOrderedComponent(b)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(ab, bb), nil
}

func extremumBy(rows []row.Row, field string, wantMin bool) (AggregateResult, error) {
	values, err := fieldValues(rows, field)
	if err != nil {
		return AggregateResult{}, err
	}
	best := values[0]
	for _, v := range values[1:] {
		cmp, err := compareValues(v, best)
		if err != nil {
			return AggregateResult{}, err
		}
		if (wantMin && cmp < 0) || (!wantMin && cmp > 0) {
			best = v
		}
	}
	return AggregateResult{Value: &best}, nil
}

func nthBy(rows []row.Row, field string, n int) (AggregateResult, error) {
	values, err := fieldValues(rows, field)
	if err != nil {
		return AggregateResult{}, err
	}
	sorted := append([]key.Value(nil), values...)
	var sortErr error
	sort.Slice(sorted, func(i, j int) bool {
		cmp, err := compareValues(sorted[i], sorted[j])
		if err != nil {
			sortErr = err
			return false
		}
		return cmp < 0
	})
	if sortErr != nil {
		return AggregateResult{}, sortErr
	}
	if n < 0 || n >= len(sorted) {
		return AggregateResult{}, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginExecutor,
			"nth_by(%d) out of range for %d values", n, len(sorted))
	}
	return AggregateResult{Value: &sorted[n]}, nil
}

func medianBy(rows []row.Row, field string) (AggregateResult, error) {
	values, err := fieldValues(rows, field)
	if err != nil {
		return AggregateResult{}, err
	}
	sorted := append([]key.Value(nil), values...)
	var sortErr error
	sort.Slice(sorted, func(i, j int) bool {
		cmp, err := compareValues(sorted[i], sorted[j])
		if err != nil {
			sortErr = err
			return false
		}
		return cmp < 0
	})
	if sortErr != nil {
		return AggregateResult{}, sortErr
	}
	mid := len(sorted) / 2
	return AggregateResult{Value: &sorted[mid]}, nil
}

func minMaxBy(rows []row.Row, field string) (AggregateResult, error) {
	values, err := fieldValues(rows, field)
	if err != nil {
		return AggregateResult{}, err
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		cmp, err := compareValues(v, min)
		if err != nil {
			return AggregateResult{}, err
		}
		if cmp < 0 {
			min = v
		}
		cmp, err = compareValues(v, max)
		if err != nil {
			return AggregateResult{}, err
		}
		if cmp > 0 {
			max = v
		}
	}
	return AggregateResult{MinValue: &min, MaxValue: &max}, nil
}

func numericOf(v key.Value) (float64, bool) {
	switch v.Kind {
	case key.KindInt:
		return float64(v.Int), true
	case key.KindUint:
		return float64(v.Uint), true
	case key.KindFloat32:
		return float64(v.Float32), true
	case key.KindFloat64:
		return v.Float64, true
	case key.KindDecimal:
		f, _ := v.Decimal.Float64()
		return f, true
	default:
		return 0, false
	}
}

func sumBy(rows []row.Row, field string) (AggregateResult, error) {
	values, err := fieldValues(rows, field)
	if err != nil {
		return AggregateResult{}, err
	}
	var sum float64
	for _, v := range values {
		f, ok := numericOf(v)
		if !ok {
			return AggregateResult{}, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginExecutor,
				"sum_by requires a numeric field, got %s", v.Kind)
		}
		sum += f
	}
	return AggregateResult{Sum: sum}, nil
}

func avgBy(rows []row.Row, field string) (AggregateResult, error) {
	sum, err := sumBy(rows, field)
	if err != nil {
		return AggregateResult{}, err
	}
	values, err := fieldValues(rows, field)
	if err != nil {
		return AggregateResult{}, err
	}
	return AggregateResult{Avg: sum.Sum / float64(len(values))}, nil
}

func countDistinctBy(rows []row.Row, field string) (AggregateResult, error) {
	values, err := fieldValues(rows, field)
	if err != nil {
		return AggregateResult{}, err
	}
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		enc, err := key.EncodeOrderedComponent(v)
		if err != nil {
			return AggregateResult{}, err
		}
		seen[string(enc)] = struct{}{}
	}
	return AggregateResult{Count: int64(len(seen))}, nil
}

// ExecutionConfig bounds grouped-aggregate materialization (spec.md §4.13
// defaults: 10 000 groups / 16 MiB of group state). EvaluateGrouped enforces
// MaxGroups only; MaxGroupBytes is carried but no group-state size is
// measured or checked against it.
type ExecutionConfig struct {
	MaxGroups     int
	MaxGroupBytes datasize.ByteSize
}

// DefaultExecutionConfig returns spec.md's stated defaults.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{MaxGroups: 10000, MaxGroupBytes: 16 * datasize.MB}
}

// GroupedPlan is a base plan fanned out by group_fields and evaluated per
// group with aggregates, under execution's group-count limit.
type GroupedPlan struct {
	GroupFields []string
	Aggregates  []AggregateSpec
	Execution   ExecutionConfig
}

// GroupKey is the canonicalized tuple of group-field values identifying one
// group (spec.md §4.13: "canonicalization uses the canonical value
// comparator").
type GroupKey struct {
	Values []key.Value
}

func groupKeyOf(r row.Row, fields []string) GroupKey {
	gk := GroupKey{Values: make([]key.Value, len(fields))}
	for i, f := range fields {
		gk.Values[i] = rowOrderValue(r, f)
	}
	return gk
}

func groupKeySignature(gk GroupKey) (string, error) {
	var buf bytes.Buffer
	for _, v := range gk.Values {
		b, err := key.EncodeOrderedComponent(v)
		if err != nil {
			return "", err
		}
		buf.Write(b)
	}
	return buf.String(), nil
}

// GroupResult is one group's key plus its computed aggregate results.
type GroupResult struct {
	Key     GroupKey
	Results []AggregateResult
}

// EvaluateGrouped partitions rows by plan.GroupFields and evaluates every
// aggregate per group, rejecting once MaxGroups is exceeded (spec.md
// §4.13: all grouped plans are materialized, never streamed).
func EvaluateGrouped(rows []row.Row, gp GroupedPlan, model *schema.EntityModel) ([]GroupResult, error) {
	for _, f := range gp.GroupFields {
		if _, ok := model.Field(f); !ok {
			return nil, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginExecutor,
				"group_by references unknown field %q", f)
		}
	}
	seenFields := make(map[string]bool, len(gp.GroupFields))
	for _, f := range gp.GroupFields {
		if seenFields[f] {
			return nil, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginExecutor,
				"group_by declares field %q more than once", f)
		}
		seenFields[f] = true
	}

	order := []string{}
	groups := make(map[string]GroupKey)
	members := make(map[string][]row.Row)
	for _, r := range rows {
		gk := groupKeyOf(r, gp.GroupFields)
		sig, err := groupKeySignature(gk)
		if err != nil {
			return nil, err
		}
		if _, ok := groups[sig]; !ok {
			if len(groups) >= gp.Execution.MaxGroups {
				return nil, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginExecutor,
					"grouped aggregate exceeded max_groups=%d", gp.Execution.MaxGroups)
			}
			groups[sig] = gk
			order = append(order, sig)
		}
		members[sig] = append(members[sig], r)
	}

	out := make([]GroupResult, 0, len(order))
	for _, sig := range order {
		group := members[sig]
		results := make([]AggregateResult, len(gp.Aggregates))
		for i, spec := range gp.Aggregates {
			res, err := Evaluate(spec, group)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
		out = append(out, GroupResult{Key: groups[sig], Results: results})
	}
	return out, nil
}
