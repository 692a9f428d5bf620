package cursor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icydb/icydb/internal/cursor"
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/plan"
	"github.com/icydb/icydb/internal/predicate"
)

func basePlan() plan.LogicalPlan {
	return plan.LogicalPlan{
		Entity: "widget",
		Mode:   plan.ModeLoad,
		Order:  []plan.OrderTerm{{Field: "id", Direction: plan.Asc}},
		Page:   &plan.Page{Offset: 0},
	}
}

func fullScanPath() plan.AccessPath {
	return plan.AccessPath{Kind: plan.PathFullScan}
}

func TestContinuationTokenEncodeDecodeRoundTrip(t *testing.T) {
	sig := cursor.Fingerprint(basePlan(), "full_scan")
	tok := cursor.ContinuationToken{
		Version:   1,
		Signature: sig,
		Boundary: cursor.CursorBoundary{Slots: []cursor.CursorBoundarySlot{
			{Present: true, Value: key.Int(5)},
		}},
		Direction:     plan.Asc,
		InitialOffset: 0,
	}

	b, err := tok.Encode()
	require.NoError(t, err)

	got, err := cursor.DecodeContinuationToken(b)
	require.NoError(t, err)
	assert.Equal(t, tok.Signature, got.Signature)
	assert.Equal(t, tok.Direction, got.Direction)
	require.Len(t, got.Boundary.Slots, 1)
	assert.Equal(t, int64(5), got.Boundary.Slots[0].Value.Int)
}

// TestValidateAcceptsMatchingToken exercises spec.md §8's S4 scenario: a
// token produced for a given plan/access shape resumes cleanly against the
// identical plan.
func TestValidateAcceptsMatchingToken(t *testing.T) {
	p := basePlan()
	sig := cursor.Fingerprint(p, "full_scan")
	tok := cursor.ContinuationToken{
		Version:   1,
		Signature: sig,
		Boundary: cursor.CursorBoundary{Slots: []cursor.CursorBoundarySlot{
			{Present: true, Value: key.Int(5)},
		}},
		Direction:     plan.Asc,
		InitialOffset: 0,
	}

	err := cursor.Validate(tok, p, fullScanPath(), "full_scan", nil)
	assert.NoError(t, err)
}

func TestValidateRejectsSignatureMismatch(t *testing.T) {
	p := basePlan()
	tok := cursor.ContinuationToken{
		Version:   1,
		Signature: cursor.Fingerprint(p, "index_prefix:by_name"), // wrong shape
		Boundary: cursor.CursorBoundary{Slots: []cursor.CursorBoundarySlot{
			{Present: true, Value: key.Int(5)},
		}},
		Direction:     plan.Asc,
		InitialOffset: 0,
	}

	err := cursor.Validate(tok, p, fullScanPath(), "full_scan", nil)
	assert.Error(t, err)
}

func TestValidateRejectsDirectionMismatch(t *testing.T) {
	p := basePlan()
	sig := cursor.Fingerprint(p, "full_scan")
	tok := cursor.ContinuationToken{
		Version:   1,
		Signature: sig,
		Boundary: cursor.CursorBoundary{Slots: []cursor.CursorBoundarySlot{
			{Present: true, Value: key.Int(5)},
		}},
		Direction:     plan.Desc, // plan's order is Asc
		InitialOffset: 0,
	}

	err := cursor.Validate(tok, p, fullScanPath(), "full_scan", nil)
	assert.Error(t, err)
}

func TestValidateRejectsOffsetMismatch(t *testing.T) {
	p := basePlan()
	sig := cursor.Fingerprint(p, "full_scan")
	tok := cursor.ContinuationToken{
		Version:   1,
		Signature: sig,
		Boundary: cursor.CursorBoundary{Slots: []cursor.CursorBoundarySlot{
			{Present: true, Value: key.Int(5)},
		}},
		Direction:     plan.Asc,
		InitialOffset: 10, // plan's page offset is 0
	}

	err := cursor.Validate(tok, p, fullScanPath(), "full_scan", nil)
	assert.Error(t, err)
}

func TestValidateRejectsAnchorPresenceMismatch(t *testing.T) {
	p := basePlan()
	sig := cursor.Fingerprint(p, "full_scan")
	tok := cursor.ContinuationToken{
		Version:   1,
		Signature: sig,
		Boundary: cursor.CursorBoundary{Slots: []cursor.CursorBoundarySlot{
			{Present: true, Value: key.Int(5)},
		}},
		Direction:     plan.Asc,
		InitialOffset: 0,
		IndexRangeAnchor: &key.RawIndexKey{
			Kind: key.IndexKeyMulti, IndexID: 1,
			Components: []key.Value{key.Int(1)}, PrimaryKey: key.Int(5),
		},
	}

	// Full-scan access path must not carry an anchor.
	err := cursor.Validate(tok, p, fullScanPath(), "full_scan", nil)
	assert.Error(t, err)
}

func TestValidateRejectsBoundaryAnchorPKMismatch(t *testing.T) {
	p := basePlan()
	indexPath := plan.AccessPath{Kind: plan.PathIndexRange, IndexName: "by_age"}
	sig := cursor.Fingerprint(p, "index_range:by_age")
	tok := cursor.ContinuationToken{
		Version:   1,
		Signature: sig,
		Boundary: cursor.CursorBoundary{Slots: []cursor.CursorBoundarySlot{
			{Present: true, Value: key.Int(5)},
		}},
		Direction:     plan.Asc,
		InitialOffset: 0,
		IndexRangeAnchor: &key.RawIndexKey{
			Kind: key.IndexKeyMulti, IndexID: 1,
			Components: []key.Value{key.Int(30)}, PrimaryKey: key.Int(999), // different PK than boundary
		},
	}

	err := cursor.Validate(tok, p, indexPath, "index_range:by_age", nil)
	assert.Error(t, err)
}

func TestFingerprintDiffersByPredicateShapeNotLiteral(t *testing.T) {
	p := basePlan()
	same := p
	same.Entity = p.Entity // identical shape, no predicate on either

	a := cursor.Fingerprint(p, "full_scan")
	b := cursor.Fingerprint(same, "full_scan")
	assert.Equal(t, a, b)

	diffShape := cursor.Fingerprint(p, "index_prefix:by_name")
	assert.NotEqual(t, a, diffShape)

	strict := predicate.CoercionSpec{ID: predicate.CoercionStrict}
	eq1 := predicate.Compare("age", predicate.OpEq, key.Int(1), strict)
	eq2 := predicate.Compare("age", predicate.OpEq, key.Int(2), strict)
	lt1 := predicate.Compare("age", predicate.OpLt, key.Int(1), strict)
	withEq1, withEq2, withLt1 := basePlan(), basePlan(), basePlan()
	withEq1.Predicate = &eq1
	withEq2.Predicate = &eq2
	withLt1.Predicate = &lt1

	litA := cursor.Fingerprint(withEq1, "full_scan")
	assert.Equal(t, litA, cursor.Fingerprint(withEq2, "full_scan"), "only the literal differs")
	assert.NotEqual(t, litA, cursor.Fingerprint(withLt1, "full_scan"), "the operator differs")
}
