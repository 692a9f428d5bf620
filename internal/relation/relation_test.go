package relation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/relation"
	"github.com/icydb/icydb/internal/schema"
	"github.com/icydb/icydb/internal/store"
)

func setupOrderReferencingCustomer(t *testing.T) (*store.DataStore, *store.IndexStore) {
	t.Helper()
	orderModel, err := schema.Build("order", "id", []schema.FieldModel{
		{Name: "id", Kind: key.KindInt, Keyable: true, Queryable: true},
		{Name: "customer_id", Kind: key.KindInt, Keyable: true, Queryable: true},
	}, nil)
	require.NoError(t, err)

	orderStore := store.NewDataStore(orderModel)
	reverseIndex := store.NewIndexStore(0, false)
	return orderStore, reverseIndex
}

// TestValidateDeleteStrongRelationsBlocksOnSurvivingReference exercises
// spec.md §8's S3 scenario: a customer row still referenced by an order
// must not be deletable.
func TestValidateDeleteStrongRelationsBlocksOnSurvivingReference(t *testing.T) {
	orderStore, reverseIndex := setupOrderReferencingCustomer(t)

	require.NoError(t, orderStore.Insert(key.Int(100), map[string]key.Value{
		"id": key.Int(100), "customer_id": key.Int(1),
	}))
	require.NoError(t, reverseIndex.Insert([]key.Value{key.Int(1)}, key.Int(100)))

	rels := []relation.Reverse{{
		SourceEntity: "order",
		SourceField:  "customer_id",
		ReverseIndex: reverseIndex,
		SourceStore:  orderStore,
	}}

	violations, err := relation.ValidateDeleteStrongRelations("customer", key.Int(1), rels)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "order", violations[0].SourceEntity)
	assert.Equal(t, "customer_id", violations[0].SourceField)
	assert.Equal(t, int64(100), violations[0].SourceKey.Int)
}

func TestValidateDeleteStrongRelationsAllowsWhenNoReference(t *testing.T) {
	orderStore, reverseIndex := setupOrderReferencingCustomer(t)

	rels := []relation.Reverse{{
		SourceEntity: "order",
		SourceField:  "customer_id",
		ReverseIndex: reverseIndex,
		SourceStore:  orderStore,
	}}

	violations, err := relation.ValidateDeleteStrongRelations("customer", key.Int(1), rels)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestValidateDeleteStrongRelationsSkipsStaleReverseEntry(t *testing.T) {
	orderStore, reverseIndex := setupOrderReferencingCustomer(t)

	// The order row now points at a different customer, but the reverse
	// index bucket was never updated (a stale secondary-structure entry).
	require.NoError(t, orderStore.Insert(key.Int(100), map[string]key.Value{
		"id": key.Int(100), "customer_id": key.Int(2),
	}))
	require.NoError(t, reverseIndex.Insert([]key.Value{key.Int(1)}, key.Int(100)))

	rels := []relation.Reverse{{
		SourceEntity: "order",
		SourceField:  "customer_id",
		ReverseIndex: reverseIndex,
		SourceStore:  orderStore,
	}}

	violations, err := relation.ValidateDeleteStrongRelations("customer", key.Int(1), rels)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestValidateDeleteStrongRelationsCorruptionOnMissingSourceRow(t *testing.T) {
	orderStore, reverseIndex := setupOrderReferencingCustomer(t)

	// Reverse index points at a primary key that was never actually stored.
	require.NoError(t, reverseIndex.Insert([]key.Value{key.Int(1)}, key.Int(999)))

	rels := []relation.Reverse{{
		SourceEntity: "order",
		SourceField:  "customer_id",
		ReverseIndex: reverseIndex,
		SourceStore:  orderStore,
	}}

	_, err := relation.ValidateDeleteStrongRelations("customer", key.Int(1), rels)
	assert.Error(t, err)
}
