package store

import (
	"fmt"

	"github.com/stevemurr/docstore/aggregate"
	"github.com/stevemurr/docstore/document"
	"github.com/stevemurr/docstore/query"
)

// prepare normalizes doc to JSON values and validates it against the
// collection's schema.
func (s *Store) prepare(collection string, doc document.Document) (document.Document, error) {
	if doc == nil {
		doc = document.Document{}
	}
	norm, err := document.From(doc)
	if err != nil {
		return nil, err
	}
	if err := s.opts.schemas.Validate(collection, norm); err != nil {
		return nil, err
	}
	return norm, nil
}

// Create inserts doc into a keyed collection, replacing any document with
// the same id. A document without an "id" field is given one. Returns a
// copy of the stored document.
func (s *Store) Create(collection string, doc document.Document) (document.Document, error) {
	if doc == nil {
		doc = document.Document{}
	}
	if _, present := doc["id"]; !present {
		doc = doc.Merge(document.Document{"id": s.opts.newID()})
	}
	if _, ok := doc.ID(); !ok {
		return nil, fmt.Errorf("%w: %v", ErrInvalidID, doc["id"])
	}
	norm, err := s.prepare(collection, doc)
	if err != nil {
		return nil, err
	}
	id, _ := norm.ID()

	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.lookup(collection, shape(Keyed))
	if err != nil {
		return nil, err
	}
	c.byID[id] = norm
	if err := s.persistLocked(); err != nil {
		return document.Clone(norm), err
	}
	return document.Clone(norm), nil
}

// FindByID returns the document with the given id, or nil if there is none.
func (s *Store) FindByID(collection, id string) (document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.lookup(collection, shape(Keyed))
	if err != nil {
		return nil, err
	}
	doc, ok := c.byID[id]
	if !ok {
		return nil, nil
	}
	return document.Clone(doc), nil
}

// Update shallow-merges patch into the document with the given id and
// returns the merged copy. It never inserts: when id is absent it returns
// nil and leaves the snapshot untouched.
func (s *Store) Update(collection, id string, patch document.Document) (document.Document, error) {
	if patch == nil {
		patch = document.Document{}
	}
	norm, err := document.From(patch)
	if err != nil {
		return nil, err
	}
	if v, ok := norm["id"]; ok && v != id {
		return nil, fmt.Errorf("%w: cannot change id %q to %v", ErrInvalidID, id, v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.lookup(collection, shape(Keyed))
	if err != nil {
		return nil, err
	}
	existing, ok := c.byID[id]
	if !ok {
		return nil, nil
	}
	merged := existing.Merge(norm)
	if err := s.opts.schemas.Validate(collection, merged); err != nil {
		return nil, err
	}
	c.byID[id] = merged
	if err := s.persistLocked(); err != nil {
		return document.Clone(merged), err
	}
	return document.Clone(merged), nil
}

// Delete removes the document with the given id. Returns true if it
// existed; the snapshot is only rewritten in that case.
func (s *Store) Delete(collection, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.lookup(collection, shape(Keyed))
	if err != nil {
		return false, err
	}
	if _, ok := c.byID[id]; !ok {
		return false, nil
	}
	delete(c.byID, id)
	return true, s.persistLocked()
}

// Append adds doc to the end of an append-only collection and returns a
// copy of it.
func (s *Store) Append(collection string, doc document.Document) (document.Document, error) {
	norm, err := s.prepare(collection, doc)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.lookup(collection, shape(AppendOnly))
	if err != nil {
		return nil, err
	}
	c.docs = append(c.docs, norm)
	if err := s.persistLocked(); err != nil {
		return document.Clone(norm), err
	}
	return document.Clone(norm), nil
}

// All returns copies of every document in collection.
func (s *Store) All(collection string) ([]document.Document, error) {
	return s.Query(collection, nil)
}

// Query returns copies of the documents in collection matching q, in
// collection order.
func (s *Store) Query(collection string, q query.Query) ([]document.Document, error) {
	m, err := query.Compile(q, s.opts.mode)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.lookup(collection, nil)
	if err != nil {
		return nil, err
	}
	return cloneAll(m.Filter(c.list())), nil
}

// Count returns the number of documents in collection matching q.
func (s *Store) Count(collection string, q query.Query) (int, error) {
	m, err := query.Compile(q, s.opts.mode)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.lookup(collection, nil)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, doc := range c.list() {
		if m.Match(doc) {
			n++
		}
	}
	return n, nil
}

// Aggregate runs p over collection. Stages apply in the fixed order match,
// group, sort, limit regardless of their position in p.
func (s *Store) Aggregate(collection string, p aggregate.Pipeline) ([]document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.lookup(collection, nil)
	if err != nil {
		return nil, err
	}
	out, err := aggregate.Run(c.list(), p, s.opts.mode)
	if err != nil {
		return nil, err
	}
	return cloneAll(out), nil
}

// AggregateJSON parses a JSON pipeline and runs it over collection.
func (s *Store) AggregateJSON(collection string, pipeline []byte) ([]document.Document, error) {
	p, err := aggregate.ParseJSON(pipeline, s.opts.mode)
	if err != nil {
		return nil, err
	}
	return s.Aggregate(collection, p)
}

func cloneAll(docs []document.Document) []document.Document {
	out := make([]document.Document, len(docs))
	for i, d := range docs {
		out[i] = document.Clone(d)
	}
	return out
}
