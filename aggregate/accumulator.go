package aggregate

import (
	"strings"

	"github.com/stevemurr/docstore/document"
)

// Accumulator computes one output field of a Group stage. Start returns a
// fresh State for each partition.
type Accumulator interface {
	Start() State
}

// State folds the documents of one partition into a result.
type State interface {
	Add(doc document.Document)
	Result() any
}

// fieldRef resolves a "$field" reference against doc. References without
// the "$" prefix are constants.
func fieldRef(ref string, doc document.Document) (any, bool) {
	if name, ok := strings.CutPrefix(ref, "$"); ok {
		return doc.Get(name)
	}
	if ref == "" {
		return nil, true
	}
	return ref, true
}

// Count counts the documents in a partition.
type Count struct{}

func (Count) Start() State { return &countState{} }

type countState struct{ n int }

func (s *countState) Add(document.Document) { s.n++ }
func (s *countState) Result() any           { return float64(s.n) }

// Sum adds the numeric values of Field across a partition. Non-numeric and
// missing values are skipped. With no Field, each document adds Value.
type Sum struct {
	Field string
	Value float64
}

func (a Sum) Start() State { return &sumState{field: a.Field, value: a.Value} }

type sumState struct {
	field string
	value float64
	total float64
}

func (s *sumState) Add(doc document.Document) {
	if s.field == "" {
		s.total += s.value
		return
	}
	v, ok := fieldRef(s.field, doc)
	if !ok {
		return
	}
	if f, ok := document.ToFloat(v); ok {
		s.total += f
	}
}

func (s *sumState) Result() any { return s.total }

// Avg averages the numeric values of Field. A partition with no numeric
// values yields null.
type Avg struct {
	Field string
}

func (a Avg) Start() State { return &avgState{field: a.Field} }

type avgState struct {
	field string
	total float64
	n     int
}

func (s *avgState) Add(doc document.Document) {
	v, ok := fieldRef(s.field, doc)
	if !ok {
		return
	}
	if f, ok := document.ToFloat(v); ok {
		s.total += f
		s.n++
	}
}

func (s *avgState) Result() any {
	if s.n == 0 {
		return nil
	}
	return s.total / float64(s.n)
}

// Push collects the values of Field in partition order. Missing values are
// skipped.
type Push struct {
	Field string
}

func (a Push) Start() State { return &pushState{field: a.Field, values: []any{}} }

type pushState struct {
	field  string
	values []any
}

func (s *pushState) Add(doc document.Document) {
	if v, ok := fieldRef(s.field, doc); ok {
		s.values = append(s.values, v)
	}
}

func (s *pushState) Result() any { return s.values }
