package exec

import (
	"bytes"
	"sort"

	"github.com/icydb/icydb/internal/cursor"
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/plan"
	"github.com/icydb/icydb/internal/predicate"
	"github.com/icydb/icydb/internal/row"
	"github.com/icydb/icydb/internal/schema"

	icyerrors "github.com/icydb/icydb/errors"
)

// ApplyPredicateFilter keeps only rows for which node evaluates true
// (the "predicate filter" post-access phase, spec.md §4.13).
func ApplyPredicateFilter(rows []row.Row, node *predicate.Node, model *schema.EntityModel) ([]row.Row, error) {
	if node == nil {
		return rows, nil
	}
	out := rows[:0]
	for _, r := range rows {
		ok, err := predicate.Evaluate(*node, r, model)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// rowOrderValue extracts the ordering value for field from r, treating a
// missing field as the canonical Unit value (sorts before every other
// keyable kind under compareRows' ordered-component comparison, since
// Unit's component tag is the lowest).
func rowOrderValue(r row.Row, field string) key.Value {
	if v, ok := r.Fields[field]; ok {
		return v
	}
	return key.Unit()
}

// compareRows orders a, b per order, a canonical order spec that must end
// with the primary-key tie-break (enforced by plan.LogicalPlan.Validate).
func compareRows(order []plan.OrderTerm, a, b row.Row) (int, error) {
	for _, term := range order {
		av := rowOrderValue(a, term.Field)
		bv := rowOrderValue(b, term.Field)
		ab, err := key.EncodeOrderedComponent(av)
		if err != nil {
			return 0, err
		}
		bb, err := key.EncodeOrderedComponent(bv)
		if err != nil {
			return 0, err
		}
		cmp := bytes.Compare(ab, bb)
		if term.Direction == plan.Desc {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp, nil
		}
	}
	return 0, nil
}

// ApplyOrder sorts rows per order (the "order" post-access phase).
func ApplyOrder(rows []row.Row, order []plan.OrderTerm) error {
	if len(order) == 0 {
		return nil
	}
	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		cmp, err := compareRows(order, rows[i], rows[j])
		if err != nil {
			sortErr = err
			return false
		}
		return cmp < 0
	})
	return sortErr
}

// boundaryAsRow builds the comparable row shape for a CursorBoundary under
// order, so ApplyCursorBoundaryPhase can reuse compareRows directly.
func boundaryAsRow(order []plan.OrderTerm, boundary cursor.CursorBoundary) row.Row {
	fields := make(map[string]key.Value, len(order))
	for i, term := range order {
		if i >= len(boundary.Slots) || !boundary.Slots[i].Present {
			continue
		}
		fields[term.Field] = boundary.Slots[i].Value
	}
	return row.Row{Fields: fields}
}

// ApplyCursorBoundaryPhase retains rows strictly past boundary under
// order's comparator (spec.md §4.13: "apply_cursor_boundary_phase ...
// retains rows with cmp(row, boundary) > Equal"), run strictly after
// ordering and before pagination.
func ApplyCursorBoundaryPhase(rows []row.Row, order []plan.OrderTerm, boundary *cursor.CursorBoundary) ([]row.Row, error) {
	if boundary == nil {
		return rows, nil
	}
	b := boundaryAsRow(order, *boundary)
	out := rows[:0]
	for _, r := range rows {
		cmp, err := compareRows(order, r, b)
		if err != nil {
			return nil, err
		}
		if cmp > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

// ApplyPaginationWindow slices rows to [offset, offset+limit) (limit nil
// means unbounded), the final post-access phase.
func ApplyPaginationWindow(rows []row.Row, page *plan.Page) ([]row.Row, bool, error) {
	if page == nil {
		return rows, false, nil
	}
	offset := int(page.Offset)
	if offset > len(rows) {
		return nil, false, nil
	}
	rest := rows[offset:]
	if page.Limit == nil {
		return rest, false, nil
	}
	limit := int(*page.Limit)
	if len(rest) <= limit {
		return rest, false, nil
	}
	return rest[:limit], true, nil // overflow=true: a continuation token should be emitted
}

// BoundedTopK realizes spec.md §4.13's "bounded-order" selection: when no
// cursor boundary is present, keep the top `keep` rows under order. It
// stable-sorts the full set with ApplyOrder and then truncates to `keep`
// rows; no partial selection is performed, so the cost is a full
// O(n log n) sort. The rows returned equal those of a select-then-sort-prefix
// approach.
func BoundedTopK(rows []row.Row, order []plan.OrderTerm, keep int) ([]row.Row, error) {
	if keep < 0 || keep >= len(rows) {
		if err := ApplyOrder(rows, order); err != nil {
			return nil, err
		}
		return rows, nil
	}
	if err := ApplyOrder(rows, order); err != nil {
		return nil, err
	}
	return rows[:keep], nil
}

// ValidateConsistentEntity is a small executor-invariant guard used before
// any phase runs: every row drawn from the stream must belong to model's
// entity, catching a mis-wired access plan early as an InvariantViolation
// rather than a confusing later failure.
func ValidateConsistentEntity(rows []row.Row, model *schema.EntityModel) error {
	for _, r := range rows {
		if r.Entity != model.Name {
			return icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginExecutor,
				"execution kernel received a row of entity %q while operating on entity %q", r.Entity, model.Name)
		}
	}
	return nil
}
