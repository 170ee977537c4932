// Package document defines the schema-less record type stored in collections
// and the value semantics (equality, ordering, grouping keys) shared by the
// query evaluator and the aggregation engine.
package document

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Document is a schema-less mapping of field name to JSON-compatible value.
type Document map[string]any

// Normalize returns v in its JSON form by round-tripping through
// encoding/json: numbers become float64, structs become maps and slices
// become []any. The result never aliases v.
func Normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// From converts an arbitrary Go value into a Document. It fails when v does
// not encode as a JSON object.
func From(v any) (Document, error) {
	n, err := Normalize(v)
	if err != nil {
		return nil, fmt.Errorf("normalizing document: %w", err)
	}
	m, ok := n.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document must be a JSON object, got %s", TypeName(n))
	}
	return Document(m), nil
}

// Clone returns a deep copy of doc.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case Document:
		return map[string]any(Clone(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Get returns the top-level field name of doc. Dotted names are not
// traversed.
func (d Document) Get(name string) (any, bool) {
	v, ok := d[name]
	return v, ok
}

// ID returns the document's "id" field when it is a non-empty string.
func (d Document) ID() (string, bool) {
	id, ok := d["id"].(string)
	return id, ok && id != ""
}

// Merge shallow-merges patch into a copy of d and returns the copy.
func (d Document) Merge(patch Document) Document {
	out := Clone(d)
	if out == nil {
		out = Document{}
	}
	for k, v := range patch {
		out[k] = cloneValue(v)
	}
	return out
}

// Equal reports whether a and b are deep-equal JSON values. Numbers compare
// by value regardless of their Go type.
func Equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case Document:
		return equalMaps(x, asMap(b))
	case map[string]any:
		return equalMaps(x, asMap(b))
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func asMap(v any) map[string]any {
	switch t := v.(type) {
	case Document:
		return t
	case map[string]any:
		return t
	}
	return nil
}

func equalMaps(x, y map[string]any) bool {
	if y == nil || len(x) != len(y) {
		return false
	}
	for k, xv := range x {
		yv, ok := y[k]
		if !ok || !Equal(xv, yv) {
			return false
		}
	}
	return true
}

// Compare orders a and b. Numbers compare numerically; strings compare
// temporally when both parse as timestamps and lexically otherwise; false
// sorts before true. ok is false when the values are not mutually
// comparable.
func Compare(a, b any) (c int, ok bool) {
	if fa, isNum := toFloat(a); isNum {
		fb, isNum := toFloat(b)
		if !isNum || math.IsNaN(fa) || math.IsNaN(fb) {
			return 0, false
		}
		return cmpOrdered(fa, fb), true
	}
	switch x := a.(type) {
	case string:
		y, isStr := b.(string)
		if !isStr {
			return 0, false
		}
		if tx, err := ParseTime(x); err == nil {
			if ty, err := ParseTime(y); err == nil {
				return tx.Compare(ty), true
			}
		}
		return strings.Compare(x, y), true
	case bool:
		y, isBool := b.(bool)
		if !isBool {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}

func cmpOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Order is a total order over JSON values for sorting: null < numbers <
// strings < objects < arrays < booleans. Within a type it agrees with
// Compare, except that NaN sorts below every other number and timestamp
// strings sort before other strings. Objects and arrays order by Key.
func Order(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmpOrdered(float64(ra), float64(rb))
	}
	switch ra {
	case rankNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch na, nb := math.IsNaN(fa), math.IsNaN(fb); {
		case na && nb:
			return 0
		case na:
			return -1
		case nb:
			return 1
		}
		return cmpOrdered(fa, fb)
	case rankString:
		x, y := a.(string), b.(string)
		tx, errx := ParseTime(x)
		ty, erry := ParseTime(y)
		switch {
		case errx == nil && erry == nil:
			if c := tx.Compare(ty); c != 0 {
				return c
			}
		case errx == nil:
			return -1
		case erry == nil:
			return 1
		}
		return strings.Compare(x, y)
	case rankBool:
		c, _ := Compare(a, b)
		return c
	case rankNull:
		return 0
	}
	return strings.Compare(Key(a), Key(b))
}

const (
	rankNull = iota
	rankNumber
	rankString
	rankObject
	rankArray
	rankBool
	rankOther
)

func typeRank(v any) int {
	if _, ok := toFloat(v); ok {
		return rankNumber
	}
	switch v.(type) {
	case nil:
		return rankNull
	case string:
		return rankString
	case Document, map[string]any:
		return rankObject
	case []any:
		return rankArray
	case bool:
		return rankBool
	}
	return rankOther
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses the timestamp shapes documents carry: RFC 3339 with or
// without fractional seconds, a zone-less date-time (taken as UTC), or a
// bare date.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp: %s", s)
}

// Key returns a canonical string for v such that Equal values share a key.
// It is used to partition documents by a field value.
func Key(v any) string {
	var sb strings.Builder
	writeKey(&sb, v)
	return sb.String()
}

func writeKey(sb *strings.Builder, v any) {
	if f, ok := toFloat(v); ok {
		if f == 0 {
			f = 0 // -0 and 0 are Equal
		}
		fmt.Fprintf(sb, "n:%v", f)
		return
	}
	switch t := v.(type) {
	case nil:
		sb.WriteString("null")
	case string:
		b, _ := json.Marshal(t)
		sb.WriteString("s:")
		sb.Write(b)
	case bool:
		fmt.Fprintf(sb, "b:%t", t)
	case []any:
		sb.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeKey(sb, e)
		}
		sb.WriteByte(']')
	case Document:
		writeMapKey(sb, t)
	case map[string]any:
		writeMapKey(sb, t)
	default:
		fmt.Fprintf(sb, "?:%v", t)
	}
}

func writeMapKey(sb *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		b, _ := json.Marshal(k)
		sb.Write(b)
		sb.WriteByte(':')
		writeKey(sb, m[k])
	}
	sb.WriteByte('}')
}

// TypeName returns the JSON type name of v.
func TypeName(v any) string {
	if _, ok := toFloat(v); ok {
		return "number"
	}
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any, Document:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

// ToFloat reports v as a float64 when it is numeric.
func ToFloat(v any) (float64, bool) {
	return toFloat(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
