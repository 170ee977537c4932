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

func referrals() []document.Document {
	return []document.Document{
		{"referrerUserId": "A", "status": "active", "bonus": 10.0},
		{"referrerUserId": "A", "status": "active", "bonus": 5.0},
		{"referrerUserId": "B", "status": "pending", "bonus": 1.0},
	}
}

func topReferrers() aggregate.Pipeline {
	return aggregate.Pipeline{
		aggregate.Match{Query: query.Query{"status": map[string]any{"$in": []any{"active"}}}},
		aggregate.CountBy("referrerUserId", "referralsCount"),
		aggregate.Sort{Keys: []aggregate.SortKey{{Field: "referralsCount", Dir: aggregate.Desc}}},
		aggregate.Limit{N: 1},
	}
}

func TestRunEndToEnd(t *testing.T) {
	got, err := aggregate.Run(referrals(), topReferrers(), query.Permissive)
	require.NoError(t, err)
	assert.Equal(t, []document.Document{{"_id": "A", "referralsCount": 2.0}}, got)
}

func TestRunIgnoresStagePosition(t *testing.T) {
	p := topReferrers()
	reversed := aggregate.Pipeline{p[3], p[2], p[1], p[0]}

	got, err := aggregate.Run(referrals(), reversed, query.Permissive)
	require.NoError(t, err)
	assert.Equal(t, []document.Document{{"_id": "A", "referralsCount": 2.0}}, got)
}

func TestRunUsesFirstStageOfEachKind(t *testing.T) {
	p := aggregate.Pipeline{aggregate.Limit{N: 2}, aggregate.Limit{N: 1}}
	got, err := aggregate.Run(referrals(), p, query.Permissive)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRunEmptyPipeline(t *testing.T) {
	got, err := aggregate.Run(referrals(), nil, query.Permissive)
	require.NoError(t, err)
	assert.Equal(t, referrals(), got)

	got, err = aggregate.Run(nil, nil, query.Permissive)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGroupPartitionOrderAndMissingField(t *testing.T) {
	docs := []document.Document{
		{"ref": "B"}, {"ref": "A"}, {"other": 1.0}, {"ref": "B"},
	}
	got, err := aggregate.Run(docs, aggregate.Pipeline{aggregate.CountBy("ref", "n")}, query.Permissive)
	require.NoError(t, err)
	assert.Equal(t, []document.Document{
		{"_id": "B", "n": 2.0},
		{"_id": "A", "n": 1.0},
		{"_id": nil, "n": 1.0},
	}, got)
}

func TestGroupAccumulators(t *testing.T) {
	g := aggregate.Group{
		By: "$referrerUserId",
		Fields: []aggregate.GroupField{
			{Name: "count", Acc: aggregate.Count{}},
			{Name: "total", Acc: aggregate.Sum{Field: "$bonus"}},
			{Name: "mean", Acc: aggregate.Avg{Field: "$bonus"}},
			{Name: "statuses", Acc: aggregate.Push{Field: "$status"}},
		},
	}
	got, err := aggregate.Run(referrals(), aggregate.Pipeline{g}, query.Permissive)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, document.Document{
		"_id": "A", "count": 2.0, "total": 15.0, "mean": 7.5, "statuses": []any{"active", "active"},
	}, got[0])
	assert.Equal(t, 1.0, got[1]["total"])
}

func TestGroupConstantID(t *testing.T) {
	g := aggregate.Group{Fields: []aggregate.GroupField{{Name: "n", Acc: aggregate.Count{}}}}
	got, err := aggregate.Run(referrals(), aggregate.Pipeline{g}, query.Permissive)
	require.NoError(t, err)
	assert.Equal(t, []document.Document{{"_id": nil, "n": 3.0}}, got)
}

func TestGroupRejectsReservedField(t *testing.T) {
	g := aggregate.Group{By: "$x", Fields: []aggregate.GroupField{{Name: "_id", Acc: aggregate.Count{}}}}
	_, err := aggregate.Run(referrals(), aggregate.Pipeline{g}, query.Permissive)
	require.ErrorIs(t, err, aggregate.ErrInvalidStage)
}

func TestSortIsStable(t *testing.T) {
	docs := []document.Document{
		{"name": "first", "score": 1.0},
		{"name": "second", "score": 2.0},
		{"name": "third", "score": 1.0},
		{"name": "fourth", "score": 2.0},
	}
	sortBy := func(dir aggregate.Direction) []string {
		got, err := aggregate.Run(docs, aggregate.Pipeline{
			aggregate.Sort{Keys: []aggregate.SortKey{{Field: "score", Dir: dir}}},
		}, query.Permissive)
		require.NoError(t, err)
		names := make([]string, len(got))
		for i, d := range got {
			names[i] = d["name"].(string)
		}
		return names
	}
	assert.Equal(t, []string{"second", "fourth", "first", "third"}, sortBy(aggregate.Desc))
	assert.Equal(t, []string{"first", "third", "second", "fourth"}, sortBy(aggregate.Asc))
	assert.Equal(t, "first", docs[0]["name"], "input must not be reordered")
}

func TestSortMissingKey(t *testing.T) {
	docs := []document.Document{
		{"name": "low", "totalPoints": 1.0},
		{"name": "nopoints"},
		{"name": "high", "totalPoints": 2.0},
		{"name": "null", "totalPoints": nil},
	}
	names := func(dir aggregate.Direction) []string {
		got, err := aggregate.Run(docs, aggregate.Pipeline{
			aggregate.Sort{Keys: []aggregate.SortKey{{Field: "totalPoints", Dir: dir}}},
		}, query.Permissive)
		require.NoError(t, err)
		var out []string
		for _, d := range got {
			out = append(out, d["name"].(string))
		}
		return out
	}
	assert.Equal(t, []string{"high", "low", "null", "nopoints"}, names(aggregate.Desc))
	assert.Equal(t, []string{"nopoints", "null", "low", "high"}, names(aggregate.Asc))
}

func TestSortMixedTypes(t *testing.T) {
	docs := []document.Document{
		{"id": "bool", "v": true},
		{"id": "str", "v": "abc"},
		{"id": "num", "v": 3.0},
		{"id": "arr", "v": []any{1.0}},
		{"id": "obj", "v": map[string]any{"a": 1.0}},
		{"id": "neg", "v": -1.0},
	}
	got, err := aggregate.Run(docs, aggregate.Pipeline{
		aggregate.Sort{Keys: []aggregate.SortKey{{Field: "v", Dir: aggregate.Asc}}},
	}, query.Permissive)
	require.NoError(t, err)
	var order []string
	for _, d := range got {
		order = append(order, d["id"].(string))
	}
	assert.Equal(t, []string{"neg", "num", "str", "obj", "arr", "bool"}, order)
}

func TestGroupNegativeZero(t *testing.T) {
	docs := []document.Document{{"v": 0.0}, {"v": math.Copysign(0, -1)}}
	got, err := aggregate.Run(docs, aggregate.Pipeline{aggregate.CountBy("v", "n")}, query.Permissive)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0]["n"])
}

func TestSortMultiKey(t *testing.T) {
	docs := []document.Document{
		{"id": "1", "level": 2.0, "points": 10.0},
		{"id": "2", "level": 3.0, "points": 5.0},
		{"id": "3", "level": 2.0, "points": 30.0},
		{"id": "4", "level": 3.0, "points": 5.0},
	}
	got, err := aggregate.Run(docs, aggregate.Pipeline{aggregate.Sort{Keys: []aggregate.SortKey{
		{Field: "level", Dir: aggregate.Desc},
		{Field: "points", Dir: aggregate.Asc},
	}}}, query.Permissive)
	require.NoError(t, err)
	var order []string
	for _, d := range got {
		order = append(order, d["id"].(string))
	}
	assert.Equal(t, []string{"2", "4", "1", "3"}, order)
}

func TestLimit(t *testing.T) {
	for _, tt := range []struct {
		n    int
		want int
	}{{0, 0}, {-1, 0}, {2, 2}, {10, 3}} {
		got, err := aggregate.Run(referrals(), aggregate.Pipeline{aggregate.Limit{N: tt.n}}, query.Permissive)
		require.NoError(t, err)
		assert.Len(t, got, tt.want, "limit %d", tt.n)
	}
}

func TestMatchStrictMode(t *testing.T) {
	p := aggregate.Pipeline{aggregate.Match{Query: query.Query{"status": map[string]any{"$exists": true}}}}

	got, err := aggregate.Run(referrals(), p, query.Permissive)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = aggregate.Run(referrals(), p, query.Strict)
	require.ErrorIs(t, err, query.ErrUnsupportedOperator)
}
