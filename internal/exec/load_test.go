package exec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icydb/icydb/internal/exec"
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/plan"
	"github.com/icydb/icydb/internal/schema"
	"github.com/icydb/icydb/internal/store"
)

func itemModel(t *testing.T) *schema.EntityModel {
	t.Helper()
	m, err := schema.Build("item", "id", []schema.FieldModel{
		{Name: "id", Kind: key.KindInt, Keyable: true, Queryable: true},
		{Name: "age", Kind: key.KindInt, Keyable: true, Queryable: true},
	}, []schema.IndexModel{
		{Name: "by_age", Fields: []string{"age"}, Unique: false},
	})
	require.NoError(t, err)
	return m
}

func seedItems(t *testing.T, reg *store.StoreRegistry, model *schema.EntityModel) {
	t.Helper()
	ds, err := reg.RegisterEntity(model)
	require.NoError(t, err)
	is, err := reg.TryGetIndexStore("item", "by_age")
	require.NoError(t, err)

	ages := map[int64]int64{10: 1, 20: 2, 30: 3, 40: 4, 50: 5}
	for id, age := range ages {
		require.NoError(t, ds.Insert(key.Int(id), map[string]key.Value{"id": key.Int(id), "age": key.Int(age)}))
		require.NoError(t, is.Insert([]key.Value{key.Int(age)}, key.Int(id)))
	}
}

// TestLoadExecutorIndexRangePushdown exercises spec.md §8's S5 scenario: a
// LogicalPlan routed through an index-range AccessPath only returns rows
// whose indexed field falls within the requested bounds.
func TestLoadExecutorIndexRangePushdown(t *testing.T) {
	model := itemModel(t)
	reg := store.NewStoreRegistry()
	seedItems(t, reg, model)

	le := exec.NewLoadExecutor(reg, model)
	p := plan.LogicalPlan{
		Entity: "item",
		Mode:   plan.ModeLoad,
		Order:  []plan.OrderTerm{{Field: "id", Direction: plan.Asc}},
	}
	ap := plan.AccessPlan{Kind: plan.AccessPathNode, Path: plan.AccessPath{
		Kind:       plan.PathIndexRange,
		IndexName:  "by_age",
		RangeLower: []key.Value{key.Int(2)},
		RangeUpper: []key.Value{key.Int(4)},
	}}

	res, err := le.Execute(p, ap, nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	ids := []int64{res.Rows[0].Fields["id"].Int, res.Rows[1].Fields["id"].Int, res.Rows[2].Fields["id"].Int}
	assert.ElementsMatch(t, []int64{20, 30, 40}, ids)
}

func TestLoadExecutorFullScanOrdersByPrimaryKey(t *testing.T) {
	model := itemModel(t)
	reg := store.NewStoreRegistry()
	seedItems(t, reg, model)

	le := exec.NewLoadExecutor(reg, model)
	p := plan.LogicalPlan{
		Entity: "item",
		Mode:   plan.ModeLoad,
		Order:  []plan.OrderTerm{{Field: "id", Direction: plan.Asc}},
	}
	ap := plan.AccessPlan{Kind: plan.AccessPathNode, Path: plan.AccessPath{Kind: plan.PathFullScan}}

	res, err := le.Execute(p, ap, nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 5)
	for i := 1; i < len(res.Rows); i++ {
		assert.Less(t, res.Rows[i-1].Fields["id"].Int, res.Rows[i].Fields["id"].Int)
	}
}

// TestLoadExecutorContinuationTokenResumesPastLastPage exercises spec.md
// §8's S4 scenario: a page that overflows its limit returns a
// continuation token, which resumes from exactly where the prior page
// ended rather than re-emitting already-seen rows.
func TestLoadExecutorContinuationTokenResumesPastLastPage(t *testing.T) {
	model := itemModel(t)
	reg := store.NewStoreRegistry()
	seedItems(t, reg, model)

	le := exec.NewLoadExecutor(reg, model)
	limit := uint32(2)
	p := plan.LogicalPlan{
		Entity: "item",
		Mode:   plan.ModeLoad,
		Order:  []plan.OrderTerm{{Field: "id", Direction: plan.Asc}},
		Page:   &plan.Page{Offset: 0, Limit: &limit},
	}
	ap := plan.AccessPlan{Kind: plan.AccessPathNode, Path: plan.AccessPath{Kind: plan.PathFullScan}}

	first, err := le.Execute(p, ap, nil)
	require.NoError(t, err)
	require.Len(t, first.Rows, 2)
	require.NotNil(t, first.Continuation)
	assert.Equal(t, int64(10), first.Rows[0].Fields["id"].Int)
	assert.Equal(t, int64(20), first.Rows[1].Fields["id"].Int)

	second, err := le.Execute(p, ap, first.Continuation)
	require.NoError(t, err)
	require.Len(t, second.Rows, 2)
	assert.Equal(t, int64(30), second.Rows[0].Fields["id"].Int)
	assert.Equal(t, int64(40), second.Rows[1].Fields["id"].Int)

	third, err := le.Execute(p, ap, second.Continuation)
	require.NoError(t, err)
	require.Len(t, third.Rows, 1)
	assert.Equal(t, int64(50), third.Rows[0].Fields["id"].Int)
	assert.Nil(t, third.Continuation, "the final page must not emit another token")
}
