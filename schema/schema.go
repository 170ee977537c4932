// Package schema provides optional JSON Schema validation for the documents
// of a collection.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrInvalidSchema is returned when a schema does not compile.
	ErrInvalidSchema = errors.New("invalid json schema")
	// ErrInvalidDocument is returned when a document fails its schema.
	ErrInvalidDocument = errors.New("document invalid against schema")
)

// Compile compiles a JSON Schema given as a decoded JSON object.
func Compile(s map[string]any) (*gojsonschema.Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return compiled, nil
}

// Validate checks doc against the JSON Schema s. A nil schema accepts
// everything.
func Validate(s map[string]any, doc map[string]any) error {
	if s == nil {
		return nil
	}
	compiled, err := Compile(s)
	if err != nil {
		return err
	}
	return check(compiled, doc)
}

func check(compiled *gojsonschema.Schema, doc map[string]any) error {
	result, err := compiled.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
}

type entry struct {
	raw      map[string]any
	compiled *gojsonschema.Schema
}

// Registry holds compiled schemas keyed by collection name. Collections
// without a schema accept any document. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]entry)}
}

// Register compiles s and attaches it to collection, replacing any
// previous schema.
func (r *Registry) Register(collection string, s map[string]any) error {
	compiled, err := Compile(s)
	if err != nil {
		return fmt.Errorf("collection %q: %w", collection, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[collection] = entry{raw: s, compiled: compiled}
	return nil
}

// RegisterJSON is Register for a schema given as JSON text.
func (r *Registry) RegisterJSON(collection, schemaJSON string) error {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return fmt.Errorf("collection %q: %w: %v", collection, ErrInvalidSchema, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[collection] = entry{compiled: compiled}
	return nil
}

// Remove detaches the schema of collection. Returns true if it existed.
func (r *Registry) Remove(collection string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.schemas[collection]
	delete(r.schemas, collection)
	return ok
}

// Get returns the schema registered through Register for collection, or
// nil.
func (r *Registry) Get(collection string) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schemas[collection].raw
}

// Collections returns the names of collections that have a schema.
func (r *Registry) Collections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks doc against the schema of collection.
func (r *Registry) Validate(collection string, doc map[string]any) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	e, ok := r.schemas[collection]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := check(e.compiled, doc); err != nil {
		return fmt.Errorf("collection %q: %w", collection, err)
	}
	return nil
}
