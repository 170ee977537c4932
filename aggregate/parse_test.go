package aggregate_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/docstore/aggregate"
	"github.com/stevemurr/docstore/document"
	"github.com/stevemurr/docstore/query"
)

func TestParseEndToEnd(t *testing.T) {
	p, err := aggregate.Parse([]map[string]any{
		{"$match": map[string]any{"status": map[string]any{"$in": []any{"active"}}}},
		{"$group": map[string]any{"_id": "$referrerUserId", "referralsCount": map[string]any{"$sum": 1}}},
		{"$sort": map[string]any{"referralsCount": -1}},
		{"$limit": 1},
	}, query.Permissive)
	require.NoError(t, err)
	require.Len(t, p, 4)

	got, err := aggregate.Run(referrals(), p, query.Permissive)
	require.NoError(t, err)
	assert.Equal(t, []document.Document{{"_id": "A", "referralsCount": 2.0}}, got)
}

func TestParseUnknownStage(t *testing.T) {
	stages := []map[string]any{{"$project": map[string]any{"x": 1}}, {"$limit": 2}}

	p, err := aggregate.Parse(stages, query.Permissive)
	require.NoError(t, err)
	assert.Equal(t, aggregate.Pipeline{aggregate.Limit{N: 2}}, p)

	_, err = aggregate.Parse(stages, query.Strict)
	require.ErrorIs(t, err, aggregate.ErrUnsupportedStage)
}

func TestParseAccumulators(t *testing.T) {
	p, err := aggregate.Parse([]map[string]any{{"$group": map[string]any{
		"_id":   "$user",
		"n":     map[string]any{"$sum": 1},
		"total": map[string]any{"$sum": "$amount"},
		"avg":   map[string]any{"$avg": "$amount"},
		"all":   map[string]any{"$push": "$amount"},
	}}}, query.Permissive)
	require.NoError(t, err)
	require.Len(t, p, 1)

	g := p[0].(aggregate.Group)
	assert.Equal(t, "$user", g.By)
	assert.Equal(t, []aggregate.GroupField{
		{Name: "all", Acc: aggregate.Push{Field: "$amount"}},
		{Name: "avg", Acc: aggregate.Avg{Field: "$amount"}},
		{Name: "n", Acc: aggregate.Count{}},
		{Name: "total", Acc: aggregate.Sum{Field: "$amount"}},
	}, g.Fields)
}

func TestParseInvalidStages(t *testing.T) {
	tests := []struct {
		name  string
		stage map[string]any
	}{
		{"match not object", map[string]any{"$match": "x"}},
		{"group without _id", map[string]any{"$group": map[string]any{"n": map[string]any{"$sum": 1}}}},
		{"group bad accumulator", map[string]any{"$group": map[string]any{"_id": "$a", "n": 1}}},
		{"sort zero direction", map[string]any{"$sort": map[string]any{"a": 0}}},
		{"limit not number", map[string]any{"$limit": "ten"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := aggregate.Parse([]map[string]any{tt.stage}, query.Permissive)
			require.ErrorIs(t, err, aggregate.ErrInvalidStage)
		})
	}
}

func TestParseStrictLimit(t *testing.T) {
	_, err := aggregate.Parse([]map[string]any{{"$limit": -1}}, query.Strict)
	require.ErrorIs(t, err, aggregate.ErrInvalidStage)

	p, err := aggregate.Parse([]map[string]any{{"$limit": -1}}, query.Permissive)
	require.NoError(t, err)
	assert.Equal(t, aggregate.Pipeline{aggregate.Limit{N: -1}}, p)
}

func TestParseJSONKeepsSortKeyOrder(t *testing.T) {
	p, err := aggregate.ParseJSON([]byte(`[
		{"$sort": {"points": 1, "level": -1}},
		{"$unwind": "$tags"}
	]`), query.Permissive)
	require.NoError(t, err)
	assert.Equal(t, aggregate.Pipeline{aggregate.Sort{Keys: []aggregate.SortKey{
		{Field: "points", Dir: aggregate.Asc},
		{Field: "level", Dir: aggregate.Desc},
	}}}, p)
}

func TestParseJSONEndToEnd(t *testing.T) {
	p, err := aggregate.ParseJSON([]byte(`[
		{"$limit": 1},
		{"$sort": {"referralsCount": -1}},
		{"$group": {"_id": "$referrerUserId", "referralsCount": {"$sum": 1}}},
		{"$match": {"status": {"$in": ["active"]}}}
	]`), query.Permissive)
	require.NoError(t, err)

	got, err := aggregate.Run(referrals(), p, query.Permissive)
	require.NoError(t, err)
	assert.Equal(t, []document.Document{{"_id": "A", "referralsCount": 2.0}}, got)
}

func TestParseJSONMalformed(t *testing.T) {
	_, err := aggregate.ParseJSON([]byte(`{"$limit": 1}`), query.Permissive)
	require.Error(t, err)
}

func TestParseHugeLimit(t *testing.T) {
	p, err := aggregate.ParseJSON([]byte(`[{"$limit": 1e20}]`), query.Permissive)
	require.NoError(t, err)
	assert.Equal(t, aggregate.Pipeline{aggregate.Limit{N: math.MaxInt}}, p)

	got, err := aggregate.Run(referrals(), p, query.Permissive)
	require.NoError(t, err)
	assert.Len(t, got, len(referrals()))

	p, err = aggregate.ParseJSON([]byte(`[{"$limit": -1e20}]`), query.Permissive)
	require.NoError(t, err)
	assert.Equal(t, aggregate.Pipeline{aggregate.Limit{N: math.MinInt}}, p)
}

func TestParseSumConstant(t *testing.T) {
	p, err := aggregate.ParseJSON([]byte(`[
		{"$group": {"_id": "$referrerUserId", "points": {"$sum": 2}}},
		{"$sort": {"_id": 1}}
	]`), query.Permissive)
	require.NoError(t, err)
	got, err := aggregate.Run(referrals(), p, query.Permissive)
	require.NoError(t, err)
	assert.Equal(t, []document.Document{
		{"_id": "A", "points": 4.0},
		{"_id": "B", "points": 2.0},
	}, got)

	p, err = aggregate.Parse([]map[string]any{{"$group": map[string]any{
		"_id": nil, "x": map[string]any{"$sum": true},
	}}}, query.Permissive)
	require.NoError(t, err)
	assert.Equal(t, aggregate.Sum{}, p[0].(aggregate.Group).Fields[0].Acc)

	_, err = aggregate.Parse([]map[string]any{{"$group": map[string]any{
		"_id": nil, "x": map[string]any{"$sum": true},
	}}}, query.Strict)
	require.ErrorIs(t, err, aggregate.ErrInvalidStage)
}

func TestParseCount(t *testing.T) {
	p, err := aggregate.Parse([]map[string]any{{"$group": map[string]any{
		"_id": "$status", "n": map[string]any{"$count": map[string]any{}},
	}}}, query.Permissive)
	require.NoError(t, err)
	assert.Equal(t, aggregate.Count{}, p[0].(aggregate.Group).Fields[0].Acc)

	for _, arg := range []any{"$amount", 1, map[string]any{"x": 1}} {
		_, err := aggregate.Parse([]map[string]any{{"$group": map[string]any{
			"_id": "$status", "n": map[string]any{"$count": arg},
		}}}, query.Permissive)
		require.ErrorIs(t, err, aggregate.ErrInvalidStage, "%v", arg)
	}
}
