package exec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icydb/icydb/internal/commit"
	"github.com/icydb/icydb/internal/exec"
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/plan"
	"github.com/icydb/icydb/internal/relation"
	"github.com/icydb/icydb/internal/schema"
	"github.com/icydb/icydb/internal/store"

	icyerrors "github.com/icydb/icydb/errors"
)

func customerModel(t *testing.T) *schema.EntityModel {
	t.Helper()
	m, err := schema.Build("customer", "id", []schema.FieldModel{
		{Name: "id", Kind: key.KindInt, Keyable: true, Queryable: true},
		{Name: "name", Kind: key.KindText, Keyable: true, Queryable: true},
	}, []schema.IndexModel{{Name: "by_name", Fields: []string{"name"}}})
	require.NoError(t, err)
	return m
}

func orderModel(t *testing.T) *schema.EntityModel {
	t.Helper()
	m, err := schema.Build("order", "id", []schema.FieldModel{
		{Name: "id", Kind: key.KindInt, Keyable: true, Queryable: true},
		{Name: "customer_id", Kind: key.KindInt, Keyable: true, Queryable: true},
	}, nil)
	require.NoError(t, err)
	return m
}

func byKeyPlan(entity string, pk key.Value) (plan.LogicalPlan, plan.AccessPlan) {
	limit := uint32(1)
	p := plan.LogicalPlan{
		Entity:      entity,
		Mode:        plan.ModeDelete,
		Order:       []plan.OrderTerm{{Field: "id", Direction: plan.Asc}},
		DeleteLimit: &limit,
	}
	ap := plan.AccessPlan{Kind: plan.AccessPathNode, Path: plan.AccessPath{Kind: plan.PathByKey, Key: pk}}
	return p, ap
}

func TestDeleteExecutorDeletesRowAndIndexEntries(t *testing.T) {
	model := customerModel(t)
	reg := store.NewStoreRegistry()
	ds, err := reg.RegisterEntity(model)
	require.NoError(t, err)
	require.NoError(t, ds.Insert(key.Int(1), map[string]key.Value{"id": key.Int(1), "name": key.Text("alice")}))
	is, err := reg.TryGetIndexStore("customer", "by_name")
	require.NoError(t, err)
	require.NoError(t, is.Insert([]key.Value{key.Text("alice")}, key.Int(1)))

	de := exec.NewDeleteExecutor(reg, model, commit.NewStore(), nil)
	p, ap := byKeyPlan("customer", key.Int(1))

	res, err := de.Execute(p, ap)
	require.NoError(t, err)
	require.Len(t, res.DeletedKeys, 1)
	assert.Equal(t, int64(1), res.DeletedKeys[0].Int)

	_, found, err := ds.Get(key.Int(1))
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = is.Get([]key.Value{key.Text("alice")})
	require.NoError(t, err)
	assert.False(t, found, "the row's by_name index entry must be removed too")
}

func TestDeleteExecutorNoMatchIsNoOp(t *testing.T) {
	model := customerModel(t)
	reg := store.NewStoreRegistry()
	_, err := reg.RegisterEntity(model)
	require.NoError(t, err)

	de := exec.NewDeleteExecutor(reg, model, commit.NewStore(), nil)
	p, ap := byKeyPlan("customer", key.Int(999))

	res, err := de.Execute(p, ap)
	require.NoError(t, err)
	assert.Empty(t, res.DeletedKeys)
}

// TestDeleteExecutorBlocksOnStrongRelation exercises spec.md §8's S3
// scenario: deleting a customer still referenced by an order fails with
// Unsupported(Executor), not Conflict.
func TestDeleteExecutorBlocksOnStrongRelation(t *testing.T) {
	custModel := customerModel(t)
	reg := store.NewStoreRegistry()
	custStore, err := reg.RegisterEntity(custModel)
	require.NoError(t, err)
	require.NoError(t, custStore.Insert(key.Int(1), map[string]key.Value{"id": key.Int(1), "name": key.Text("alice")}))

	ordModel := orderModel(t)
	ordStore, err := reg.RegisterEntity(ordModel)
	require.NoError(t, err)
	require.NoError(t, ordStore.Insert(key.Int(100), map[string]key.Value{"id": key.Int(100), "customer_id": key.Int(1)}))

	reverseIndex := store.NewIndexStore(0, false)
	require.NoError(t, reverseIndex.Insert([]key.Value{key.Int(1)}, key.Int(100)))

	rels := []relation.Reverse{{
		SourceEntity: "order",
		SourceField:  "customer_id",
		ReverseIndex: reverseIndex,
		SourceStore:  ordStore,
	}}

	de := exec.NewDeleteExecutor(reg, custModel, commit.NewStore(), rels)
	p, ap := byKeyPlan("customer", key.Int(1))

	_, err = de.Execute(p, ap)
	require.Error(t, err)
	icyErr, ok := err.(*icyerrors.Error)
	require.True(t, ok)
	assert.Equal(t, icyerrors.ClassUnsupported, icyErr.Class)
	assert.Equal(t, icyerrors.OriginExecutor, icyErr.Origin)

	_, found, err := custStore.Get(key.Int(1))
	require.NoError(t, err)
	assert.True(t, found, "a blocked delete must leave the victim row untouched")
}
