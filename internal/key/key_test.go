package key

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarKeyRoundTrip(t *testing.T) {
	cases := []Value{
		Unit(),
		Bool(true),
		Bool(false),
		Int(42),
		Int(-42),
		Uint(7),
		Timestamp(1234567890),
		Principal(uuid.New()),
	}
	for _, v := range cases {
		b, err := EncodeScalarKey(v)
		require.NoError(t, err)
		got, err := DecodeScalarKey(b)
		require.NoError(t, err)
		assert.Equal(t, v.Kind, got.Kind)
	}
}

func TestScalarKeyIntOrderingPreserved(t *testing.T) {
	lo, err := EncodeScalarKey(Int(-5))
	require.NoError(t, err)
	hi, err := EncodeScalarKey(Int(5))
	require.NoError(t, err)
	assert.Less(t, string(lo), string(hi))
}

func TestOrderedComponentRoundTrip(t *testing.T) {
	cases := []Value{
		Unit(),
		Bool(true),
		Int(-7),
		Uint(99),
		Text("hello"),
		Blob([]byte{1, 2, 3}),
		List([]Value{Int(1), Int(2)}),
	}
	for _, v := range cases {
		b, err := EncodeOrderedComponent(v)
		require.NoError(t, err)
		got, n, err := DecodeOrderedComponent(b)
		require.NoError(t, err)
		assert.Equal(t, len(b), n)
		assert.Equal(t, v.Kind, got.Kind)
	}
}

func TestOrderedComponentTextOrderingPreserved(t *testing.T) {
	a, err := EncodeOrderedComponent(Text("apple"))
	require.NoError(t, err)
	b, err := EncodeOrderedComponent(Text("banana"))
	require.NoError(t, err)
	assert.Less(t, string(a), string(b))
}

func TestRawDataKeyRoundTrip(t *testing.T) {
	rk := RawDataKey{EntityName: "widget", Key: Int(5)}
	b, err := rk.Encode()
	require.NoError(t, err)

	got, err := DecodeRawDataKey(b, "widget")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Key.Int)
}

func TestRawIndexKeyRoundTrip(t *testing.T) {
	rik := RawIndexKey{
		Kind:       IndexKeyMulti,
		IndexID:    3,
		Components: []Value{Int(1), Text("x")},
		PrimaryKey: Int(100),
	}
	b, err := rik.Encode()
	require.NoError(t, err)

	got, err := DecodeRawIndexKey(b)
	require.NoError(t, err)
	assert.Equal(t, rik.IndexID, got.IndexID)
	assert.Equal(t, int64(100), got.PrimaryKey.Int)
	require.Len(t, got.Components, 2)
	assert.Equal(t, int64(1), got.Components[0].Int)
	assert.Equal(t, "x", got.Components[1].Text)
}

func TestRawIndexEntryRoundTrip(t *testing.T) {
	entry := RawIndexEntry{Keys: []Value{Int(1), Int(2), Int(3)}}
	b, err := entry.Encode()
	require.NoError(t, err)

	got, err := DecodeRawIndexEntry(b)
	require.NoError(t, err)
	require.Len(t, got.Keys, 3)
	assert.Equal(t, int64(2), got.Keys[1].Int)
}

func TestRawIndexEntryRequireUnique(t *testing.T) {
	assert.NoError(t, RawIndexEntry{Keys: []Value{Int(1)}}.RequireUnique())
	assert.Error(t, RawIndexEntry{Keys: []Value{Int(1), Int(2)}}.RequireUnique())
}
