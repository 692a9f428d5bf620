package exec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icydb/icydb/internal/commit"
	"github.com/icydb/icydb/internal/exec"
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/schema"
	"github.com/icydb/icydb/internal/store"

	icyerrors "github.com/icydb/icydb/errors"
)

func widgetModel(t *testing.T) *schema.EntityModel {
	t.Helper()
	m, err := schema.Build("widget", "id", []schema.FieldModel{
		{Name: "id", Kind: key.KindInt, Keyable: true, Queryable: true},
		{Name: "name", Kind: key.KindText, Queryable: true, Keyable: true},
	}, []schema.IndexModel{
		{Name: "by_name", Fields: []string{"name"}, Unique: true},
	})
	require.NoError(t, err)
	return m
}

func newSaveExecutor(t *testing.T) (*exec.SaveExecutor, *store.StoreRegistry) {
	t.Helper()
	model := widgetModel(t)
	reg := store.NewStoreRegistry()
	_, err := reg.RegisterEntity(model)
	require.NoError(t, err)
	return exec.NewSaveExecutor(reg, model, commit.NewStore()), reg
}

func TestSaveExecutorInsertsNewRow(t *testing.T) {
	se, reg := newSaveExecutor(t)

	res, err := se.Execute(map[string]key.Value{"id": key.Int(1), "name": key.Text("alice")})
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.Equal(t, int64(1), res.PrimaryKey.Int)

	ds, err := reg.TryGetDataStore("widget")
	require.NoError(t, err)
	r, found, err := ds.Get(key.Int(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alice", r.Fields["name"].Text)

	is, err := reg.TryGetIndexStore("widget", "by_name")
	require.NoError(t, err)
	entry, found, err := is.Get([]key.Value{key.Text("alice")})
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, entry.Keys, 1)
}

func TestSaveExecutorOverwriteReportsNotInserted(t *testing.T) {
	se, _ := newSaveExecutor(t)

	_, err := se.Execute(map[string]key.Value{"id": key.Int(1), "name": key.Text("alice")})
	require.NoError(t, err)

	res, err := se.Execute(map[string]key.Value{"id": key.Int(1), "name": key.Text("alicia")})
	require.NoError(t, err)
	assert.False(t, res.Inserted)
}

// TestSaveExecutorRejectsUniqueIndexCollision exercises spec.md §8's S1
// scenario: a second row whose unique-index component collides with an
// existing row under a different primary key must be refused as a
// Conflict(Index), not applied.
func TestSaveExecutorRejectsUniqueIndexCollision(t *testing.T) {
	se, reg := newSaveExecutor(t)

	_, err := se.Execute(map[string]key.Value{"id": key.Int(1), "name": key.Text("alice")})
	require.NoError(t, err)

	_, err = se.Execute(map[string]key.Value{"id": key.Int(2), "name": key.Text("alice")})
	require.Error(t, err)
	icyErr, ok := err.(*icyerrors.Error)
	require.True(t, ok)
	assert.Equal(t, icyerrors.ClassConflict, icyErr.Class)
	assert.Equal(t, icyerrors.OriginIndex, icyErr.Origin)

	ds, err := reg.TryGetDataStore("widget")
	require.NoError(t, err)
	_, found, err := ds.Get(key.Int(2))
	require.NoError(t, err)
	assert.False(t, found, "the colliding row must never be committed")
}

func TestSaveExecutorAllowsReassigningSameRowToSameComponents(t *testing.T) {
	se, _ := newSaveExecutor(t)

	_, err := se.Execute(map[string]key.Value{"id": key.Int(1), "name": key.Text("alice")})
	require.NoError(t, err)

	// Re-saving the same primary key with unchanged index components must
	// not be treated as a collision against itself.
	_, err = se.Execute(map[string]key.Value{"id": key.Int(1), "name": key.Text("alice")})
	assert.NoError(t, err)
}

func TestSaveExecutorMissingPrimaryKeyRejected(t *testing.T) {
	se, _ := newSaveExecutor(t)

	_, err := se.Execute(map[string]key.Value{"name": key.Text("alice")})
	assert.Error(t, err)
}
