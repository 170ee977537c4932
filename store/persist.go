package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stevemurr/docstore/document"
	"github.com/stevemurr/docstore/snapshot"
)

// load fills the store from the sink, falling back to an empty baseline.
func (s *Store) load() error {
	data, err := s.sink.Load()
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		s.log.Info("no snapshot found, starting empty")
		return s.writeBaseline()
	case err != nil:
		s.log.Warn("snapshot unreadable, resetting to empty store", "error", err)
		s.opts.metrics.Recovered()
		return s.writeBaseline()
	}

	if err := s.decode(data); err != nil {
		s.log.Warn("snapshot corrupt, resetting to empty store", "error", err)
		s.opts.metrics.Recovered()
		s.reset()
		return s.writeBaseline()
	}
	for _, name := range s.order {
		s.opts.metrics.SetDocuments(name, s.colls[name].len())
	}
	s.log.Info("snapshot loaded", "collections", len(s.order))
	return nil
}

func (s *Store) writeBaseline() error {
	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("writing empty snapshot: %w", err)
	}
	return nil
}

// decode replaces the in-memory collections with the snapshot contents.
// Collections missing from the snapshot stay empty; collections outside the
// layout are dropped.
func (s *Store) decode(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("snapshot is not an object")
	}

	colls := make(map[string]*collection, len(s.order))
	for _, name := range s.order {
		c := newCollection(s.colls[name].spec)
		colls[name] = c
		body, ok := raw[name]
		if !ok {
			s.log.Info("collection missing from snapshot, starting empty", "collection", name)
			continue
		}
		if err := s.decodeCollection(c, body); err != nil {
			return fmt.Errorf("collection %q: %w", name, err)
		}
	}
	for name := range raw {
		if _, ok := colls[name]; !ok {
			s.log.Warn("dropping collection not in layout", "collection", name)
		}
	}
	s.colls = colls
	return nil
}

// decodeCollection fills c from its snapshot body. In keyed collections the
// map key is authoritative: a document whose "id" disagrees with it is
// rewritten to carry the key.
func (s *Store) decodeCollection(c *collection, body json.RawMessage) error {
	if c.spec.Shape == Keyed {
		var docs map[string]document.Document
		if err := json.Unmarshal(body, &docs); err != nil {
			return err
		}
		for id, doc := range docs {
			if doc == nil {
				continue
			}
			if got, ok := doc["id"]; !ok || got != id {
				s.log.Warn("document id does not match snapshot key, using key",
					"collection", c.spec.Name, "key", id, "id", got)
				doc["id"] = id
			}
			c.byID[id] = doc
		}
		return nil
	}

	var docs []document.Document
	if err := json.Unmarshal(body, &docs); err != nil {
		return err
	}
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		c.docs = append(c.docs, doc)
	}
	return nil
}

// encode renders the store as one JSON object: keyed collections as
// id -> document, append-only collections as arrays.
func (s *Store) encode() ([]byte, error) {
	out := make(map[string]any, len(s.colls))
	for name, c := range s.colls {
		if c.spec.Shape == Keyed {
			out[name] = c.byID
		} else {
			out[name] = c.docs
		}
	}
	return json.MarshalIndent(out, "", "  ")
}

// persistLocked writes the snapshot. Callers hold s.mu for writing, or
// own the store exclusively during OpenSink.
func (s *Store) persistLocked() error {
	start := time.Now()
	data, err := s.encode()
	if err == nil {
		err = s.sink.Save(data)
	}
	s.opts.metrics.ObservePersist(start, len(data), err)
	if err != nil {
		s.log.Error("snapshot write failed", "error", err)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	for _, name := range s.order {
		s.opts.metrics.SetDocuments(name, s.colls[name].len())
	}
	s.log.Debug("snapshot written", "bytes", len(data), "took", time.Since(start))
	return nil
}
