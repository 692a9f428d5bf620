package exec

import (
	"github.com/icydb/icydb/internal/cursor"
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/plan"
	"github.com/icydb/icydb/internal/row"
	"github.com/icydb/icydb/internal/schema"
	"github.com/icydb/icydb/internal/store"

	icyerrors "github.com/icydb/icydb/errors"
)

// LoadExecutor resolves a ModeLoad LogicalPlan against an already-chosen
// AccessPlan: build an ordered key stream, materialize rows, run the
// post-access phase pipeline, and emit a continuation token on overflow
// (spec.md §4.13, §4.14).
type LoadExecutor struct {
	Registry *store.StoreRegistry
	Model    *schema.EntityModel
}

// NewLoadExecutor constructs a LoadExecutor for model.
func NewLoadExecutor(reg *store.StoreRegistry, model *schema.EntityModel) *LoadExecutor {
	return &LoadExecutor{Registry: reg, Model: model}
}

// LoadResult is one page of a load operation's result.
type LoadResult struct {
	Rows         []row.Row
	Continuation *cursor.ContinuationToken
}

// Execute runs p against accessPlan, optionally resuming from token.
func (e *LoadExecutor) Execute(p plan.LogicalPlan, accessPlan plan.AccessPlan, token *cursor.ContinuationToken) (LoadResult, error) {
	if p.Mode != plan.ModeLoad {
		return LoadResult{}, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginExecutor,
			"LoadExecutor received a plan of mode %d", p.Mode)
	}
	if err := p.Validate(e.Model); err != nil {
		return LoadResult{}, err
	}
	ds, err := e.Registry.TryGetDataStore(p.Entity)
	if err != nil {
		return LoadResult{}, err
	}

	accessShape := AccessShapeOf(accessPlan)

	var anchor *key.RawIndexKey
	var boundary *cursor.CursorBoundary
	if token != nil {
		representativePath, expectedIndex, err := e.representativePath(accessPlan)
		if err != nil {
			return LoadResult{}, err
		}
		if err := cursor.Validate(*token, p, representativePath, accessShape, expectedIndex); err != nil {
			return LoadResult{}, err
		}
		anchor = token.IndexRangeAnchor
		b := token.Boundary
		boundary = &b
	}

	stream, err := e.buildKeyStream(accessPlan, anchor)
	if err != nil {
		return LoadResult{}, err
	}

	rows, err := RowsFromOrderedKeyStream(ds, stream, p.Consistency)
	if err != nil {
		return LoadResult{}, err
	}
	if err := ValidateConsistentEntity(rows, e.Model); err != nil {
		return LoadResult{}, err
	}
	rows, err = ApplyPredicateFilter(rows, p.Predicate, e.Model)
	if err != nil {
		return LoadResult{}, err
	}
	if err := ApplyOrder(rows, p.Order); err != nil {
		return LoadResult{}, err
	}
	rows, err = ApplyCursorBoundaryPhase(rows, p.Order, boundary)
	if err != nil {
		return LoadResult{}, err
	}

	pageForWindow := p.Page
	if token != nil && p.Page != nil {
		// The boundary phase already skipped every previously-emitted row;
		// re-applying the original offset here would skip past rows the
		// caller has not seen yet.
		pageForWindow = &plan.Page{Offset: 0, Limit: p.Page.Limit}
	}
	rows, overflow, err := ApplyPaginationWindow(rows, pageForWindow)
	if err != nil {
		return LoadResult{}, err
	}

	var continuation *cursor.ContinuationToken
	if overflow && len(rows) > 0 {
		cont, err := e.buildContinuation(p, accessPlan, accessShape, rows[len(rows)-1])
		if err != nil {
			return LoadResult{}, err
		}
		continuation = &cont
	}

	return LoadResult{Rows: rows, Continuation: continuation}, nil
}

// representativePath picks the single AccessPath a resumed token is
// checked against. Union/Intersection plans have no single path to anchor
// on, so they fall back to a FullScan shape (no index-range anchor support
// across a composed access plan).
func (e *LoadExecutor) representativePath(accessPlan plan.AccessPlan) (plan.AccessPath, *cursor.ExpectedIndex, error) {
	if accessPlan.Kind != plan.AccessPathNode {
		return plan.AccessPath{Kind: plan.PathFullScan}, nil, nil
	}
	path := accessPlan.Path
	if path.Kind != plan.PathIndexRange {
		return path, nil, nil
	}
	is, err := e.Registry.TryGetIndexStore(e.Model.Name, path.IndexName)
	if err != nil {
		return plan.AccessPath{}, nil, err
	}
	arity := len(path.RangeLower)
	if len(path.RangeUpper) > arity {
		arity = len(path.RangeUpper)
	}
	return path, &cursor.ExpectedIndex{IndexID: is.IndexID, Kind: is.Kind, Arity: arity}, nil
}

// AccessShapeOf renders a stable textual description of accessPlan's shape,
// fed into the cursor signature so two plans with differently-shaped access
// (e.g. index prefix vs full scan) never share a continuation token.
func AccessShapeOf(ap plan.AccessPlan) string {
	switch ap.Kind {
	case plan.AccessUnion:
		return "union(" + childShapes(ap.Children) + ")"
	case plan.AccessIntersection:
		return "intersection(" + childShapes(ap.Children) + ")"
	default:
		return pathShape(ap.Path)
	}
}

func childShapes(children []plan.AccessPlan) string {
	s := ""
	for i, c := range children {
		if i > 0 {
			s += ","
		}
		s += AccessShapeOf(c)
	}
	return s
}

func pathShape(p plan.AccessPath) string {
	switch p.Kind {
	case plan.PathByKey:
		return "by_key"
	case plan.PathByKeys:
		return "by_keys"
	case plan.PathKeyRange:
		return "key_range"
	case plan.PathIndexPrefix:
		return "index_prefix:" + p.IndexName
	case plan.PathIndexRange:
		return "index_range:" + p.IndexName
	default:
		return "full_scan"
	}
}

// buildKeyStream lowers accessPlan into an OrderedKeyStream, recursing
// through Union/Intersection combinators (spec.md §4.13: "union/
// intersection of AccessPlan is reduced pairwise"). anchor, when non-nil,
// only applies at the root: a resumed index-range anchor makes sense only
// against the single path it was captured from.
func (e *LoadExecutor) buildKeyStream(ap plan.AccessPlan, anchor *key.RawIndexKey) (OrderedKeyStream, error) {
	switch ap.Kind {
	case plan.AccessPathNode:
		return e.buildPathStream(ap.Path, anchor)
	case plan.AccessUnion:
		sources, err := e.buildChildStreams(ap.Children)
		if err != nil {
			return nil, err
		}
		return NewMergeOrderedKeyStream(sources, ScalarComparator)
	case plan.AccessIntersection:
		sources, err := e.buildChildStreams(ap.Children)
		if err != nil {
			return nil, err
		}
		return NewIntersectOrderedKeyStream(sources, ScalarComparator)
	default:
		return nil, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginExecutor,
			"access plan has unknown kind %d", ap.Kind)
	}
}

func (e *LoadExecutor) buildChildStreams(children []plan.AccessPlan) ([]OrderedKeyStream, error) {
	sources := make([]OrderedKeyStream, 0, len(children))
	for _, c := range children {
		s, err := e.buildKeyStream(c, nil)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, nil
}

// buildPathStream lowers a single AccessPath into an OrderedKeyStream,
// verifying a route marker first (spec.md §4.14: "the system must not
// branch into a fast path without this marker").
func (e *LoadExecutor) buildPathStream(path plan.AccessPath, anchor *key.RawIndexKey) (OrderedKeyStream, error) {
	route := VerifyRoute(path)
	kind, err := route.Kind()
	if err != nil {
		return nil, err
	}

	ds, err := e.Registry.TryGetDataStore(e.Model.Name)
	if err != nil {
		return nil, err
	}

	switch kind {
	case RoutePK:
		return e.buildPKStream(ds, path)
	case RouteIndexOrdered, RouteIndexRangePushdown:
		return e.buildIndexStream(path, anchor)
	default:
		return e.buildFullScanStream(ds)
	}
}

func (e *LoadExecutor) buildPKStream(ds *store.DataStore, path plan.AccessPath) (OrderedKeyStream, error) {
	switch path.Kind {
	case plan.PathByKey:
		ok, err := ds.ContainsKey(path.Key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return NewVecOrderedKeyStream(nil), nil
		}
		return NewVecOrderedKeyStream([]key.Value{path.Key}), nil
	case plan.PathByKeys:
		return NewVecOrderedKeyStream(path.Keys), nil
	case plan.PathKeyRange:
		var rows []row.Row
		var err error
		if path.Direction == plan.Desc {
			rows, err = ds.RangeDescend(path.RangeStart, path.RangeEnd)
		} else {
			rows, err = ds.Range(path.RangeStart, path.RangeEnd)
		}
		if err != nil {
			return nil, err
		}
		return NewVecOrderedKeyStream(pksOf(rows, e.Model)), nil
	default:
		return nil, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginExecutor,
			"route RoutePK does not cover access path kind %d", path.Kind)
	}
}

func (e *LoadExecutor) buildIndexStream(path plan.AccessPath, anchor *key.RawIndexKey) (OrderedKeyStream, error) {
	lowered, err := plan.Lower(path)
	if err != nil {
		return nil, err
	}
	is, err := e.Registry.TryGetIndexStore(e.Model.Name, lowered.IndexName)
	if err != nil {
		return nil, err
	}
	direction := store.Ascending
	if lowered.Direction == plan.Desc {
		direction = store.Descending
	}
	keys, err := is.ResolveInRangeLimited(lowered.Lower, lowered.Upper, anchor, direction, 0, nil)
	if err != nil {
		return nil, err
	}
	return NewVecOrderedKeyStream(keys), nil
}

func (e *LoadExecutor) buildFullScanStream(ds *store.DataStore) (OrderedKeyStream, error) {
	rows, err := ds.Iter()
	if err != nil {
		return nil, err
	}
	return NewVecOrderedKeyStream(pksOf(rows, e.Model)), nil
}

func pksOf(rows []row.Row, model *schema.EntityModel) []key.Value {
	out := make([]key.Value, 0, len(rows))
	for _, r := range rows {
		if v, ok := r.Fields[model.PrimaryKeyField]; ok {
			out = append(out, v)
		}
	}
	return out
}

// buildContinuation builds the token resuming after lastRow, the final row
// of this page.
func (e *LoadExecutor) buildContinuation(p plan.LogicalPlan, accessPlan plan.AccessPlan, accessShape string, lastRow row.Row) (cursor.ContinuationToken, error) {
	boundary := cursor.CursorBoundary{Slots: make([]cursor.CursorBoundarySlot, 0, len(p.Order))}
	for _, term := range p.Order {
		v, ok := lastRow.Fields[term.Field]
		boundary.Slots = append(boundary.Slots, cursor.CursorBoundarySlot{Present: ok, Value: v})
	}

	direction := plan.Asc
	if len(p.Order) > 0 {
		direction = p.Order[0].Direction
	}

	var offset uint32
	if p.Page != nil {
		offset = p.Page.Offset
	}

	t := cursor.ContinuationToken{
		Version:       1,
		Signature:     cursor.Fingerprint(p, accessShape),
		Boundary:      boundary,
		Direction:     direction,
		InitialOffset: offset,
	}

	if accessPlan.Kind == plan.AccessPathNode && accessPlan.Path.Kind == plan.PathIndexRange {
		anchor, err := e.anchorFor(accessPlan.Path, lastRow)
		if err != nil {
			return cursor.ContinuationToken{}, err
		}
		t.IndexRangeAnchor = &anchor
	}

	return t, nil
}

func (e *LoadExecutor) anchorFor(path plan.AccessPath, r row.Row) (key.RawIndexKey, error) {
	is, err := e.Registry.TryGetIndexStore(e.Model.Name, path.IndexName)
	if err != nil {
		return key.RawIndexKey{}, err
	}
	idx, ok := e.Model.IndexByName(path.IndexName)
	if !ok {
		return key.RawIndexKey{}, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginExecutor,
			"access path references unregistered index %q", path.IndexName)
	}
	components := make([]key.Value, 0, len(idx.Fields))
	for _, f := range idx.Fields {
		v, ok := r.Fields[f]
		if !ok {
			return key.RawIndexKey{}, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginExecutor,
				"row missing field %q required to build a continuation anchor for index %q", f, path.IndexName)
		}
		components = append(components, v)
	}
	pk, err := r.PrimaryKey(e.Model)
	if err != nil {
		return key.RawIndexKey{}, err
	}
	return key.RawIndexKey{Kind: is.Kind, IndexID: is.IndexID, Components: components, PrimaryKey: pk}, nil
}
