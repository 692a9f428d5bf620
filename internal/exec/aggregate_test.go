package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/row"
)

func rowsOf(field string, values ...int64) []row.Row {
	rows := make([]row.Row, len(values))
	for i, v := range values {
		rows[i] = row.Row{Entity: "widget", Fields: map[string]key.Value{field: key.Int(v)}}
	}
	return rows
}

func TestEvaluateCountExists(t *testing.T) {
	rows := rowsOf("age", 1, 2, 3)

	res, err := Evaluate(AggregateSpec{Kind: AggCount}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Count)

	res, err = Evaluate(AggregateSpec{Kind: AggExists}, rows)
	require.NoError(t, err)
	assert.True(t, res.Exists)

	res, err = Evaluate(AggregateSpec{Kind: AggExists}, nil)
	require.NoError(t, err)
	assert.False(t, res.Exists)
}

func TestEvaluateMinMax(t *testing.T) {
	rows := rowsOf("age", 5, 1, 9, 3)

	res, err := Evaluate(AggregateSpec{Kind: AggMin, Field: "age"}, rows)
	require.NoError(t, err)
	require.NotNil(t, res.Value)
	assert.Equal(t, int64(1), res.Value.Int)

	res, err = Evaluate(AggregateSpec{Kind: AggMax, Field: "age"}, rows)
	require.NoError(t, err)
	require.NotNil(t, res.Value)
	assert.Equal(t, int64(9), res.Value.Int)
}

func TestEvaluateMinMaxByMatchesMinMax(t *testing.T) {
	rows := rowsOf("age", 5, 1, 9, 3)

	byKind, err := Evaluate(AggregateSpec{Kind: AggMinBy, Field: "age"}, rows)
	require.NoError(t, err)
	plain, err := Evaluate(AggregateSpec{Kind: AggMin, Field: "age"}, rows)
	require.NoError(t, err)
	assert.Equal(t, byKind.Value.Int, plain.Value.Int)
}

func TestEvaluateSumAvg(t *testing.T) {
	rows := rowsOf("age", 1, 2, 3, 4)

	res, err := Evaluate(AggregateSpec{Kind: AggSumBy, Field: "age"}, rows)
	require.NoError(t, err)
	assert.Equal(t, float64(10), res.Sum)

	res, err = Evaluate(AggregateSpec{Kind: AggAvgBy, Field: "age"}, rows)
	require.NoError(t, err)
	assert.Equal(t, float64(2.5), res.Avg)
}

func TestEvaluateCountDistinctBy(t *testing.T) {
	rows := rowsOf("age", 1, 1, 2, 3, 3, 3)

	res, err := Evaluate(AggregateSpec{Kind: AggCountDistinctBy, Field: "age"}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Count)
}

func TestEvaluateNthByOutOfRange(t *testing.T) {
	rows := rowsOf("age", 1, 2, 3)

	_, err := Evaluate(AggregateSpec{Kind: AggNthBy, Field: "age", N: 10}, rows)
	assert.Error(t, err)
}

func TestEvaluateFirstLastRejected(t *testing.T) {
	rows := rowsOf("age", 1, 2, 3)

	_, err := Evaluate(AggregateSpec{Kind: AggFirst}, rows)
	assert.Error(t, err)
}

func TestFirstLastRow(t *testing.T) {
	rows := rowsOf("age", 1, 2, 3)

	first, ok := FirstRow(rows)
	require.True(t, ok)
	assert.Equal(t, int64(1), first.Fields["age"].Int)

	last, ok := LastRow(rows)
	require.True(t, ok)
	assert.Equal(t, int64(3), last.Fields["age"].Int)

	_, ok = FirstRow(nil)
	assert.False(t, ok)
}

func TestEvaluateMissingFieldRejected(t *testing.T) {
	rows := rowsOf("age", 1, 2, 3)

	_, err := Evaluate(AggregateSpec{Kind: AggSumBy, Field: "does_not_exist"}, rows)
	assert.Error(t, err)
}

func TestEvaluateSumByRejectsNonNumeric(t *testing.T) {
	rows := []row.Row{
		{Entity: "widget", Fields: map[string]key.Value{"name": key.Value{Kind: key.KindText, Text: "a"}}},
	}

	_, err := Evaluate(AggregateSpec{Kind: AggSumBy, Field: "name"}, rows)
	assert.Error(t, err)
}
