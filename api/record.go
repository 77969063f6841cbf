package api

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Well-known fields added to a record as it moves through a pipeline.
const (
	FieldPrompt       = "prompt"
	FieldResult       = "result"
	FieldParsedResult = "parsed_result"
	FieldPred         = "pred"
	FieldTarget       = "target"
)

// Record is one evaluation unit: an ordered mapping from field name to value.
//
// Field order is insertion order and is kept through JSON encoding so that
// persisted output is reproducible. The zero value is an empty record.
type Record struct {
	fields *orderedmap.OrderedMap[string, any]
}

// Records is an ordered record collection. Order is significant: model outputs
// are attached back to records by position.
type Records []*Record

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{fields: orderedmap.New[string, any]()}
}

// RecordFromMap builds a record from m. Keys are inserted in sorted order
// since map iteration order is not defined.
func RecordFromMap(m map[string]any) *Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	r := NewRecord()
	for _, k := range keys {
		r.Set(k, m[k])
	}
	return r
}

func (r *Record) ensure() {
	if r.fields == nil {
		r.fields = orderedmap.New[string, any]()
	}
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	if r == nil || r.fields == nil {
		return nil, false
	}
	return r.fields.Get(key)
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Set stores value under key. An existing key keeps its position.
func (r *Record) Set(key string, value any) *Record {
	r.ensure()
	r.fields.Set(key, value)
	return r
}

// Delete removes key.
func (r *Record) Delete(key string) {
	if r.fields == nil {
		return
	}
	r.fields.Delete(key)
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil || r.fields == nil {
		return 0
	}
	return r.fields.Len()
}

// Keys returns field names in insertion order.
func (r *Record) Keys() []string {
	if r == nil || r.fields == nil {
		return nil
	}
	keys := make([]string, 0, r.fields.Len())
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Map returns the fields as a plain map. Values are shared, not copied.
func (r *Record) Map() map[string]any {
	m := make(map[string]any, r.Len())
	if r == nil || r.fields == nil {
		return m
	}
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		m[pair.Key] = pair.Value
	}
	return m
}

// Clone returns a shallow copy: a new field mapping whose values are shared with r.
func (r *Record) Clone() *Record {
	c := NewRecord()
	if r == nil || r.fields == nil {
		return c
	}
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		c.fields.Set(pair.Key, pair.Value)
	}
	return c
}

// Update copies every field of other into r, overwriting existing values.
func (r *Record) Update(other *Record) *Record {
	r.ensure()
	if other == nil || other.fields == nil {
		return r
	}
	for pair := other.fields.Oldest(); pair != nil; pair = pair.Next() {
		r.fields.Set(pair.Key, pair.Value)
	}
	return r
}

// String returns the value under key as a string. Non-string scalars are formatted.
func (r *Record) String(key string) (string, bool) {
	v, ok := r.Get(key)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	case nil:
		return "", true
	default:
		return fmt.Sprint(s), true
	}
}

// Float returns the value under key as a float64.
func (r *Record) Float(key string) (float64, bool) {
	v, ok := r.Get(key)
	if !ok {
		return 0, false
	}
	return AsFloat(v)
}

func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil || r.fields == nil {
		return []byte("{}"), nil
	}
	return r.fields.MarshalJSON()
}

func (r *Record) UnmarshalJSON(data []byte) error {
	r.fields = orderedmap.New[string, any]()
	return r.fields.UnmarshalJSON(data)
}

// Clone returns a new collection holding shallow clones of every record.
func (rs Records) Clone() Records {
	out := make(Records, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}

// AsFloat converts numeric values, and strings holding a number, to float64.
func AsFloat(v any) (float64, bool) {
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
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
