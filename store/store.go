// Package store is an embedded document store that keeps a fixed set of
// collections in memory and mirrors them to a single snapshot after every
// mutation.
//
// Keyed collections address documents by their "id" field; append-only
// collections keep documents in insertion order. Reads are served from
// memory. Every mutation rewrites the whole snapshot before it returns, so
// the store suits small, embedded data sets.
package store

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/stevemurr/docstore/document"
	"github.com/stevemurr/docstore/snapshot"
)

// collection is one named container. Keyed collections use byID; append-only
// collections use docs.
type collection struct {
	spec CollectionSpec
	byID map[string]document.Document
	docs []document.Document
}

func newCollection(spec CollectionSpec) *collection {
	c := &collection{spec: spec}
	if spec.Shape == Keyed {
		c.byID = make(map[string]document.Document)
	} else {
		c.docs = []document.Document{}
	}
	return c
}

// list returns the collection's documents without copying them. Keyed
// collections are listed in ascending id order.
func (c *collection) list() []document.Document {
	if c.spec.Shape == AppendOnly {
		return c.docs
	}
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]document.Document, len(ids))
	for i, id := range ids {
		out[i] = c.byID[id]
	}
	return out
}

func (c *collection) len() int {
	if c.spec.Shape == Keyed {
		return len(c.byID)
	}
	return len(c.docs)
}

// Store is the in-memory source of truth for all collections. Safe for
// concurrent use: reads share a lock, and each mutation holds the write lock
// through its read-modify-write and the snapshot write.
type Store struct {
	mu     sync.RWMutex
	colls  map[string]*collection
	order  []string
	sink   snapshot.Sink
	opts   options
	log    *slog.Logger
	closed bool
}

// Open loads the JSON snapshot at path, creating its directory when needed.
// See OpenSink.
func Open(path string, opts ...Option) (*Store, error) {
	sink, err := snapshot.NewFileSink(path)
	if err != nil {
		return nil, err
	}
	return OpenSink(sink, opts...)
}

// OpenSink loads the store from sink. A missing, unreadable or malformed
// snapshot is replaced by an empty store, which is written back before
// OpenSink returns; only that write can make OpenSink fail.
func OpenSink(sink snapshot.Sink, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.layout.validate(); err != nil {
		return nil, err
	}

	s := &Store{
		sink: sink,
		opts: o,
		log:  o.logger.With("snapshot", sink.Location()),
	}
	s.reset()

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) reset() {
	s.colls = make(map[string]*collection, len(s.opts.layout))
	s.order = s.order[:0]
	for _, spec := range s.opts.layout {
		s.colls[spec.Name] = newCollection(spec)
		s.order = append(s.order, spec.Name)
	}
}

// Collections returns the collection names in layout order.
func (s *Store) Collections() []string {
	return append([]string(nil), s.order...)
}

// Shape reports the shape of collection name.
func (s *Store) Shape(name string) (Shape, error) {
	c, ok := s.colls[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return c.spec.Shape, nil
}

// Persist writes the whole store to the snapshot. Mutations call it
// implicitly; call it directly to retry after an ErrPersist.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.persistLocked()
}

// Close releases the snapshot sink. The store needs no flush: every
// successful mutation has already been written.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sink.Close()
}

// lookup returns the collection called name, checking its shape when want
// is non-nil. Callers hold s.mu.
func (s *Store) lookup(name string, want *Shape) (*collection, error) {
	if s.closed {
		return nil, ErrClosed
	}
	c, ok := s.colls[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	if want != nil && c.spec.Shape != *want {
		return nil, fmt.Errorf("%w: %q is %s", ErrWrongShape, name, c.spec.Shape)
	}
	return c, nil
}

func shape(s Shape) *Shape { return &s }
