// Package query evaluates predicate specifications against documents.
//
// A Query maps a top-level field name to either a literal, which the
// document's field must equal, or an operator object such as
// {"$in": [...]}, {"$gt": x} or {"$ne": x}. Every field in the query must
// match. Dotted names are field names, not paths.
package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/stevemurr/docstore/document"
)

// ErrUnsupportedOperator is returned in strict mode for operator keys the
// evaluator does not know.
var ErrUnsupportedOperator = errors.New("unsupported query operator")

// Query is a predicate specification: field -> literal or operator object.
type Query map[string]any

// Mode selects how unknown operators are handled.
type Mode int

const (
	// Permissive ignores unknown operators.
	Permissive Mode = iota
	// Strict rejects unknown operators with ErrUnsupportedOperator.
	Strict
)

// Operator names.
const (
	OpIn  = "$in"
	OpNin = "$nin"
	OpGt  = "$gt"
	OpGte = "$gte"
	OpLt  = "$lt"
	OpLte = "$lte"
	OpNe  = "$ne"
)

type condition struct {
	field string
	op    string // "" for literal equality
	value any
}

// Matcher is a compiled Query. It holds no mutable state and is safe for
// concurrent use.
type Matcher struct {
	conds []condition
}

// Compile validates q and returns its Matcher. In Permissive mode it only
// fails when q cannot be normalized to JSON values.
func Compile(q Query, mode Mode) (*Matcher, error) {
	fields := make([]string, 0, len(q))
	for f := range q {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	m := &Matcher{}
	for _, field := range fields {
		raw, err := document.Normalize(q[field])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		ops, isOp := operatorObject(raw)
		if !isOp {
			m.conds = append(m.conds, condition{field: field, value: raw})
			continue
		}
		names := make([]string, 0, len(ops))
		for name := range ops {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if !known(name) {
				if mode == Strict {
					return nil, fmt.Errorf("field %q: %w: %s", field, ErrUnsupportedOperator, name)
				}
				continue
			}
			m.conds = append(m.conds, condition{field: field, op: name, value: ops[name]})
		}
	}
	return m, nil
}

// MustCompile is Compile in Permissive mode for queries known to be valid.
func MustCompile(q Query) *Matcher {
	m, err := Compile(q, Permissive)
	if err != nil {
		panic(err)
	}
	return m
}

// operatorObject reports whether v is a non-empty map whose keys all start
// with "$".
func operatorObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func known(op string) bool {
	switch op {
	case OpIn, OpNin, OpGt, OpGte, OpLt, OpLte, OpNe:
		return true
	}
	return false
}

// Match reports whether doc satisfies every condition.
func (m *Matcher) Match(doc document.Document) bool {
	for _, c := range m.conds {
		if !c.match(doc) {
			return false
		}
	}
	return true
}

func (c condition) match(doc document.Document) bool {
	v, present := doc.Get(c.field)
	switch c.op {
	case "":
		return present && document.Equal(v, c.value)
	case OpNe:
		return !present || !document.Equal(v, c.value)
	case OpIn:
		return present && member(v, c.value)
	case OpNin:
		return !present || !member(v, c.value)
	case OpGt:
		return present && ordered(v, c.value, func(n int) bool { return n > 0 })
	case OpGte:
		return present && ordered(v, c.value, func(n int) bool { return n >= 0 })
	case OpLt:
		return present && ordered(v, c.value, func(n int) bool { return n < 0 })
	case OpLte:
		return present && ordered(v, c.value, func(n int) bool { return n <= 0 })
	}
	return true
}

func member(v, list any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if document.Equal(v, item) {
			return true
		}
	}
	return false
}

func ordered(v, operand any, want func(int) bool) bool {
	n, ok := document.Compare(v, operand)
	return ok && want(n)
}

// Filter returns the documents of docs that match m, in input order.
func (m *Matcher) Filter(docs []document.Document) []document.Document {
	out := make([]document.Document, 0, len(docs))
	for _, d := range docs {
		if m.Match(d) {
			out = append(out, d)
		}
	}
	return out
}

// Filter compiles q in Permissive mode and applies it to docs.
func Filter(docs []document.Document, q Query) ([]document.Document, error) {
	m, err := Compile(q, Permissive)
	if err != nil {
		return nil, err
	}
	return m.Filter(docs), nil
}
