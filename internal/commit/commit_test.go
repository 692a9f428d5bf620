package commit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icydb/icydb/internal/commit"
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/schema"
	"github.com/icydb/icydb/internal/store"
)

func widgetModel(t *testing.T) *schema.EntityModel {
	t.Helper()
	m, err := schema.Build("widget", "id", []schema.FieldModel{
		{Name: "id", Kind: key.KindInt, Keyable: true, Queryable: true},
		{Name: "name", Kind: key.KindText, Keyable: true, Queryable: true},
	}, []schema.IndexModel{
		{Name: "by_name", Fields: []string{"name"}, Unique: true},
	})
	require.NoError(t, err)
	return m
}

func TestMarkerEncodeDecodeRoundTrip(t *testing.T) {
	dataOp, err := commit.NewUpsertDataOp("widget", key.Int(1), map[string]key.Value{
		"id": key.Int(1), "name": key.Text("alice"),
	})
	require.NoError(t, err)
	indexOp, err := commit.NewIndexOp("widget", "by_name", []key.Value{key.Text("alice")}, key.Int(1), true)
	require.NoError(t, err)

	id, err := commit.NewMarkerID()
	require.NoError(t, err)
	marker := commit.Marker{ID: id, Kind: commit.KindSave, DataOps: []commit.DataOp{dataOp}, IndexOps: []commit.IndexOp{indexOp}}

	b, err := marker.Encode()
	require.NoError(t, err)

	got, err := commit.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, marker.ID, got.ID)
	assert.Equal(t, marker.Kind, got.Kind)
	require.Len(t, got.DataOps, 1)
	require.Len(t, got.IndexOps, 1)
}

func TestMarkerIDsAreMonotonicallySortable(t *testing.T) {
	a, err := commit.NewMarkerID()
	require.NoError(t, err)
	b, err := commit.NewMarkerID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}

func TestBeginCommitRejectsConcurrentMarker(t *testing.T) {
	cs := commit.NewStore()
	id1, err := commit.NewMarkerID()
	require.NoError(t, err)
	_, err = commit.BeginCommit(cs, commit.Marker{ID: id1, Kind: commit.KindSave})
	require.NoError(t, err)

	id2, err := commit.NewMarkerID()
	require.NoError(t, err)
	_, err = commit.BeginCommit(cs, commit.Marker{ID: id2, Kind: commit.KindSave})
	assert.Error(t, err)
}

func TestApplyAppliesIndexOpsBeforeDataOps(t *testing.T) {
	model := widgetModel(t)
	reg := store.NewStoreRegistry()
	_, err := reg.RegisterEntity(model)
	require.NoError(t, err)

	// The index op's unique-collision check happens at apply time against
	// the index store only; if data ops ran first, a buggy apply order
	// could still succeed here, but a correct index-before-data order must
	// at minimum leave both stores consistent afterward.
	dataOp, err := commit.NewUpsertDataOp("widget", key.Int(1), map[string]key.Value{
		"id": key.Int(1), "name": key.Text("alice"),
	})
	require.NoError(t, err)
	indexOp, err := commit.NewIndexOp("widget", "by_name", []key.Value{key.Text("alice")}, key.Int(1), true)
	require.NoError(t, err)

	id, err := commit.NewMarkerID()
	require.NoError(t, err)
	marker := commit.Marker{ID: id, Kind: commit.KindSave, DataOps: []commit.DataOp{dataOp}, IndexOps: []commit.IndexOp{indexOp}}

	guard, err := commit.BeginCommit(commit.NewStore(), marker)
	require.NoError(t, err)
	require.NoError(t, guard.Apply(reg))
	commit.FinishCommit(guard)

	ds, err := reg.TryGetDataStore("widget")
	require.NoError(t, err)
	row, found, err := ds.Get(key.Int(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alice", row.Fields["name"].Text)

	is, err := reg.TryGetIndexStore("widget", "by_name")
	require.NoError(t, err)
	entry, found, err := is.Get([]key.Value{key.Text("alice")})
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, entry.Keys, 1)
	assert.Equal(t, int64(1), entry.Keys[0].Int)
}

func TestFinishCommitClearsMarkerUnconditionally(t *testing.T) {
	commitStore := commit.NewStore()
	id, err := commit.NewMarkerID()
	require.NoError(t, err)
	guard, err := commit.BeginCommit(commitStore, commit.Marker{ID: id, Kind: commit.KindSave})
	require.NoError(t, err)
	assert.False(t, commitStore.IsEmpty())
	commit.FinishCommit(guard)
	assert.True(t, commitStore.IsEmpty())
}

