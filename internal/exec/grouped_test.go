package exec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icydb/icydb/internal/exec"
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/row"
	"github.com/icydb/icydb/internal/schema"
)

func saleModel(t *testing.T) *schema.EntityModel {
	t.Helper()
	m, err := schema.Build("sale", "id", []schema.FieldModel{
		{Name: "id", Kind: key.KindInt, Keyable: true, Queryable: true},
		{Name: "category", Kind: key.KindText, Keyable: true, Queryable: true},
		{Name: "amount", Kind: key.KindInt, Keyable: true, Queryable: true},
	}, nil)
	require.NoError(t, err)
	return m
}

func saleRows() []row.Row {
	data := []struct {
		id       int64
		category string
		amount   int64
	}{
		{1, "fruit", 10},
		{2, "fruit", 20},
		{3, "veg", 5},
		{4, "veg", 7},
		{5, "veg", 3},
	}
	out := make([]row.Row, len(data))
	for i, d := range data {
		out[i] = row.Row{Entity: "sale", Fields: map[string]key.Value{
			"id": key.Int(d.id), "category": key.Text(d.category), "amount": key.Int(d.amount),
		}}
	}
	return out
}

// TestEvaluateGroupedSumsPerCategory exercises spec.md §8's S6 scenario: a
// grouped aggregate partitions rows by group_fields and evaluates each
// aggregate independently per group.
func TestEvaluateGroupedSumsPerCategory(t *testing.T) {
	model := saleModel(t)
	gp := exec.GroupedPlan{
		GroupFields: []string{"category"},
		Aggregates:  []exec.AggregateSpec{{Kind: exec.AggSumBy, Field: "amount"}, {Kind: exec.AggCount}},
		Execution:   exec.DefaultExecutionConfig(),
	}

	results, err := exec.EvaluateGrouped(saleRows(), gp, model)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byCategory := make(map[string]exec.GroupResult, len(results))
	for _, r := range results {
		byCategory[r.Key.Values[0].Text] = r
	}

	fruit, ok := byCategory["fruit"]
	require.True(t, ok)
	assert.Equal(t, float64(30), fruit.Results[0].Sum)
	assert.Equal(t, int64(2), fruit.Results[1].Count)

	veg, ok := byCategory["veg"]
	require.True(t, ok)
	assert.Equal(t, float64(15), veg.Results[0].Sum)
	assert.Equal(t, int64(3), veg.Results[1].Count)
}

func TestEvaluateGroupedRejectsUnknownGroupField(t *testing.T) {
	model := saleModel(t)
	gp := exec.GroupedPlan{
		GroupFields: []string{"does_not_exist"},
		Aggregates:  []exec.AggregateSpec{{Kind: exec.AggCount}},
		Execution:   exec.DefaultExecutionConfig(),
	}

	_, err := exec.EvaluateGrouped(saleRows(), gp, model)
	assert.Error(t, err)
}

func TestEvaluateGroupedRejectsDuplicateGroupField(t *testing.T) {
	model := saleModel(t)
	gp := exec.GroupedPlan{
		GroupFields: []string{"category", "category"},
		Aggregates:  []exec.AggregateSpec{{Kind: exec.AggCount}},
		Execution:   exec.DefaultExecutionConfig(),
	}

	_, err := exec.EvaluateGrouped(saleRows(), gp, model)
	assert.Error(t, err)
}

func TestEvaluateGroupedRejectsExceedingMaxGroups(t *testing.T) {
	model := saleModel(t)
	gp := exec.GroupedPlan{
		GroupFields: []string{"category"},
		Aggregates:  []exec.AggregateSpec{{Kind: exec.AggCount}},
		Execution:   exec.ExecutionConfig{MaxGroups: 1, MaxGroupBytes: exec.DefaultExecutionConfig().MaxGroupBytes},
	}

	_, err := exec.EvaluateGrouped(saleRows(), gp, model)
	assert.Error(t, err)
}
