// Package aggregate runs a fixed four-stage pipeline (match, group, sort,
// limit) over an ordered sequence of documents.
//
// Stages are applied in that order no matter where they appear in the
// pipeline; only the first stage of each kind is used.
package aggregate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/stevemurr/docstore/document"
	"github.com/stevemurr/docstore/query"
)

var (
	// ErrUnsupportedStage is returned in strict mode for unknown stage keys.
	ErrUnsupportedStage = errors.New("unsupported pipeline stage")
	// ErrInvalidStage is returned when a recognised stage is malformed.
	ErrInvalidStage = errors.New("invalid pipeline stage")
)

// Stage is one step of a Pipeline: Match, Group, Sort or Limit.
type Stage interface {
	stage()
}

// Pipeline is an ordered list of stages as supplied by the caller.
type Pipeline []Stage

// Match keeps the documents satisfying Query.
type Match struct {
	Query query.Query
}

// Group partitions its input by the value of By, a "$field" reference, and
// emits one document per partition with _id set to that value plus one
// field per accumulator. A By without the "$" prefix is a constant; an
// empty By groups everything under a null _id.
type Group struct {
	By     string
	Fields []GroupField
}

// GroupField names the output field an accumulator writes to.
type GroupField struct {
	Name string
	Acc  Accumulator
}

// Direction is a sort direction.
type Direction int

const (
	Asc  Direction = 1
	Desc Direction = -1
)

// SortKey is one key of a Sort stage.
type SortKey struct {
	Field string
	Dir   Direction
}

// Sort orders its input stably by Keys, most significant first.
type Sort struct {
	Keys []SortKey
}

// Limit keeps at most N leading documents.
type Limit struct {
	N int
}

func (Match) stage() {}
func (Group) stage() {}
func (Sort) stage()  {}
func (Limit) stage() {}

// CountBy is a Group that counts partitions of field into the output
// field as.
func CountBy(field, as string) Group {
	return Group{By: "$" + field, Fields: []GroupField{{Name: as, Acc: Count{}}}}
}

// plan holds the first stage of each kind found in a pipeline.
type plan struct {
	match *Match
	group *Group
	sort  *Sort
	limit *Limit
}

func planOf(p Pipeline) plan {
	var pl plan
	for _, st := range p {
		switch s := st.(type) {
		case Match:
			if pl.match == nil {
				pl.match = &s
			}
		case Group:
			if pl.group == nil {
				pl.group = &s
			}
		case Sort:
			if pl.sort == nil {
				pl.sort = &s
			}
		case Limit:
			if pl.limit == nil {
				pl.limit = &s
			}
		}
	}
	return pl
}

// Run evaluates p over docs. docs is not modified; the result may share
// values with it.
func Run(docs []document.Document, p Pipeline, mode query.Mode) ([]document.Document, error) {
	pl := planOf(p)
	out := docs

	if pl.match != nil {
		m, err := query.Compile(pl.match.Query, mode)
		if err != nil {
			return nil, fmt.Errorf("$match: %w", err)
		}
		out = m.Filter(out)
	}
	if pl.group != nil {
		g, err := runGroup(out, *pl.group)
		if err != nil {
			return nil, err
		}
		out = g
	}
	if pl.sort != nil {
		out = runSort(out, pl.sort.Keys)
	}
	if pl.limit != nil {
		out = runLimit(out, pl.limit.N)
	}
	if out == nil {
		out = []document.Document{}
	}
	return out, nil
}

type partition struct {
	id     any
	states []State
}

func runGroup(docs []document.Document, g Group) ([]document.Document, error) {
	for _, f := range g.Fields {
		if f.Name == "" || f.Name == "_id" || f.Acc == nil {
			return nil, fmt.Errorf("$group: %w: field %q", ErrInvalidStage, f.Name)
		}
	}

	index := make(map[string]*partition)
	var order []*partition
	for _, doc := range docs {
		id, ok := fieldRef(g.By, doc)
		if !ok {
			id = nil
		}
		key := document.Key(id)
		p, seen := index[key]
		if !seen {
			p = &partition{id: id, states: make([]State, len(g.Fields))}
			for i, f := range g.Fields {
				p.states[i] = f.Acc.Start()
			}
			index[key] = p
			order = append(order, p)
		}
		for _, s := range p.states {
			s.Add(doc)
		}
	}

	out := make([]document.Document, 0, len(order))
	for _, p := range order {
		doc := document.Document{"_id": p.id}
		for i, f := range g.Fields {
			doc[f.Name] = p.states[i].Result()
		}
		out = append(out, doc)
	}
	return out, nil
}

// runSort returns a stably sorted copy of docs. Values are ranked by
// document.Order, with a missing field below every present value; a larger
// value sorts first when the direction is Desc. Ties defer to the next key.
func runSort(docs []document.Document, keys []SortKey) []document.Document {
	out := make([]document.Document, len(docs))
	copy(out, docs)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		for _, k := range keys {
			c := compareField(a, b, k.Field)
			if c == 0 {
				continue
			}
			if k.Dir == Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return out
}

func compareField(a, b document.Document, field string) int {
	av, aok := a.Get(field)
	bv, bok := b.Get(field)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	return document.Order(av, bv)
}

func runLimit(docs []document.Document, n int) []document.Document {
	if n <= 0 {
		return []document.Document{}
	}
	if n >= len(docs) {
		return docs
	}
	return docs[:n]
}
