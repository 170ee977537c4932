package store

import (
	"github.com/stevemurr/docstore/aggregate"
	"github.com/stevemurr/docstore/document"
	"github.com/stevemurr/docstore/query"
)

// KeyedCollection is a handle bound to one keyed collection.
type KeyedCollection struct {
	s    *Store
	name string
}

// Keyed returns a handle for the keyed collection name. Operations on the
// handle fail with ErrUnknownCollection or ErrWrongShape when name does not
// fit.
func (s *Store) Keyed(name string) *KeyedCollection {
	return &KeyedCollection{s: s, name: name}
}

func (k *KeyedCollection) Name() string { return k.name }

func (k *KeyedCollection) Create(doc document.Document) (document.Document, error) {
	return k.s.Create(k.name, doc)
}

func (k *KeyedCollection) FindByID(id string) (document.Document, error) {
	return k.s.FindByID(k.name, id)
}

func (k *KeyedCollection) Update(id string, patch document.Document) (document.Document, error) {
	return k.s.Update(k.name, id, patch)
}

func (k *KeyedCollection) Delete(id string) (bool, error) {
	return k.s.Delete(k.name, id)
}

func (k *KeyedCollection) Query(q query.Query) ([]document.Document, error) {
	return k.s.Query(k.name, q)
}

func (k *KeyedCollection) Count(q query.Query) (int, error) {
	return k.s.Count(k.name, q)
}

// AppendOnlyCollection is a handle bound to one append-only collection.
type AppendOnlyCollection struct {
	s    *Store
	name string
}

// AppendOnly returns a handle for the append-only collection name.
func (s *Store) AppendOnly(name string) *AppendOnlyCollection {
	return &AppendOnlyCollection{s: s, name: name}
}

func (a *AppendOnlyCollection) Name() string { return a.name }

func (a *AppendOnlyCollection) Append(doc document.Document) (document.Document, error) {
	return a.s.Append(a.name, doc)
}

func (a *AppendOnlyCollection) Query(q query.Query) ([]document.Document, error) {
	return a.s.Query(a.name, q)
}

func (a *AppendOnlyCollection) Count(q query.Query) (int, error) {
	return a.s.Count(a.name, q)
}

func (a *AppendOnlyCollection) Aggregate(p aggregate.Pipeline) ([]document.Document, error) {
	return a.s.Aggregate(a.name, p)
}
