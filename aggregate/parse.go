package aggregate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/stevemurr/docstore/document"
	"github.com/stevemurr/docstore/query"
)

// Stage keys understood by Parse and ParseJSON.
const (
	KeyMatch = "$match"
	KeyGroup = "$group"
	KeySort  = "$sort"
	KeyLimit = "$limit"
)

// Parse builds a Pipeline from Mongo-shaped stage objects such as
// {"$match": {...}} or {"$limit": 10}. Unknown stage keys are skipped in
// Permissive mode and rejected in Strict mode.
//
// A $sort object given as a Go map has no key order, so its keys are
// applied in ascending name order. Use ParseJSON or a typed Sort to keep
// the caller's key order.
func Parse(stages []map[string]any, mode query.Mode) (Pipeline, error) {
	var p Pipeline
	for i, raw := range stages {
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			var sortKeys []string
			if key == KeySort {
				if m, ok := raw[key].(map[string]any); ok {
					for k := range m {
						sortKeys = append(sortKeys, k)
					}
					sort.Strings(sortKeys)
				}
			}
			st, err := parseStage(key, raw[key], sortKeys, mode)
			if err != nil {
				return nil, fmt.Errorf("stage %d: %w", i, err)
			}
			if st != nil {
				p = append(p, st)
			}
		}
	}
	return p, nil
}

// ParseJSON parses a JSON array of stage objects, keeping the key order of
// each $sort object.
func ParseJSON(data []byte, mode query.Mode) (Pipeline, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decoding pipeline: %w", err)
	}
	var p Pipeline
	for i, raw := range raws {
		keys, err := objectKeys(raw)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		for _, key := range keys {
			var v any
			if err := json.Unmarshal(fields[key], &v); err != nil {
				return nil, fmt.Errorf("stage %d: %w", i, err)
			}
			var sortKeys []string
			if key == KeySort {
				if sortKeys, err = objectKeys(fields[key]); err != nil {
					return nil, fmt.Errorf("stage %d: %s: %w", i, key, err)
				}
			}
			st, err := parseStage(key, v, sortKeys, mode)
			if err != nil {
				return nil, fmt.Errorf("stage %d: %w", i, err)
			}
			if st != nil {
				p = append(p, st)
			}
		}
	}
	return p, nil
}

// objectKeys returns the keys of a JSON object in document order, without
// duplicates.
func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: expected object", ErrInvalidStage)
	}
	var keys []string
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key := tok.(string)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func parseStage(key string, v any, sortKeys []string, mode query.Mode) (Stage, error) {
	switch key {
	case KeyMatch:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: %w: expected object", key, ErrInvalidStage)
		}
		return Match{Query: query.Query(m)}, nil
	case KeyGroup:
		return parseGroup(v, mode)
	case KeySort:
		return parseSort(v, sortKeys)
	case KeyLimit:
		return parseLimit(v, mode)
	}
	if mode == query.Strict {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStage, key)
	}
	return nil, nil
}

func parseGroup(v any, mode query.Mode) (Stage, error) {
	spec, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: %w: expected object", KeyGroup, ErrInvalidStage)
	}
	id, ok := spec["_id"]
	if !ok {
		return nil, fmt.Errorf("%s: %w: missing _id", KeyGroup, ErrInvalidStage)
	}
	g := Group{}
	switch ref := id.(type) {
	case nil:
	case string:
		g.By = ref
	default:
		return nil, fmt.Errorf("%s: %w: _id must be a field reference", KeyGroup, ErrInvalidStage)
	}

	names := make([]string, 0, len(spec))
	for name := range spec {
		if name != "_id" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		acc, err := parseAccumulator(spec[name], mode)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", KeyGroup, name, err)
		}
		if acc != nil {
			g.Fields = append(g.Fields, GroupField{Name: name, Acc: acc})
		}
	}
	return g, nil
}

func parseAccumulator(v any, mode query.Mode) (Accumulator, error) {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) != 1 {
		return nil, fmt.Errorf("%w: accumulator must be a single-key object", ErrInvalidStage)
	}
	for op, arg := range obj {
		switch op {
		case "$count":
			if m, ok := arg.(map[string]any); ok && len(m) == 0 {
				return Count{}, nil
			}
			return nil, fmt.Errorf("%w: $count takes an empty object", ErrInvalidStage)
		case "$sum":
			if ref, ok := arg.(string); ok {
				return Sum{Field: ref}, nil
			}
			if f, ok := document.ToFloat(arg); ok {
				if f == 1 {
					return Count{}, nil
				}
				return Sum{Value: f}, nil
			}
			if mode == query.Strict {
				return nil, fmt.Errorf("%w: $sum expects a number or a field reference", ErrInvalidStage)
			}
			return Sum{}, nil
		case "$avg":
			if ref, ok := arg.(string); ok {
				return Avg{Field: ref}, nil
			}
			return nil, fmt.Errorf("%w: $avg expects a field reference", ErrInvalidStage)
		case "$push":
			if ref, ok := arg.(string); ok {
				return Push{Field: ref}, nil
			}
			return nil, fmt.Errorf("%w: $push expects a field reference", ErrInvalidStage)
		default:
			if mode == query.Strict {
				return nil, fmt.Errorf("%w: accumulator %s", ErrUnsupportedStage, op)
			}
		}
	}
	return nil, nil
}

func parseSort(v any, keys []string) (Stage, error) {
	spec, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: %w: expected object", KeySort, ErrInvalidStage)
	}
	s := Sort{}
	for _, field := range keys {
		d, ok := document.ToFloat(spec[field])
		if !ok || d == 0 {
			return nil, fmt.Errorf("%s.%s: %w: direction must be 1 or -1", KeySort, field, ErrInvalidStage)
		}
		dir := Asc
		if d < 0 {
			dir = Desc
		}
		s.Keys = append(s.Keys, SortKey{Field: field, Dir: dir})
	}
	return s, nil
}

func parseLimit(v any, mode query.Mode) (Stage, error) {
	f, ok := document.ToFloat(v)
	if !ok || math.IsNaN(f) {
		return nil, fmt.Errorf("%s: %w: expected a number", KeyLimit, ErrInvalidStage)
	}
	if mode == query.Strict && (f < 0 || f != math.Trunc(f)) {
		return nil, fmt.Errorf("%s: %w: expected a non-negative integer", KeyLimit, ErrInvalidStage)
	}
	switch {
	case f >= math.MaxInt:
		return Limit{N: math.MaxInt}, nil
	case f <= math.MinInt:
		return Limit{N: math.MinInt}, nil
	}
	return Limit{N: int(f)}, nil
}
