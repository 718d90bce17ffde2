package flatten

import (
	"github.com/okian/solarbatch/internal/domain/jsonvalue"
)

// Row is a flat record: scalar values keyed by path, in insertion order.
// Setting an existing key replaces its value and keeps its position.
type Row struct {
	keys   []string
	values map[string]jsonvalue.Value
}

// NewRow returns an empty row.
func NewRow() *Row {
	return &Row{values: make(map[string]jsonvalue.Value)}
}

// Set stores v under key.
func (r *Row) Set(key string, v jsonvalue.Value) {
	if r.values == nil {
		r.values = make(map[string]jsonvalue.Value)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Get returns the value stored under key.
func (r *Row) Get(key string) (jsonvalue.Value, bool) {
	if r == nil {
		return jsonvalue.Value{}, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the keys in insertion order. The slice must not be modified.
func (r *Row) Keys() []string {
	if r == nil {
		return nil
	}
	return r.keys
}

// Len returns the number of keys.
func (r *Row) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Clone returns an independent copy of r. Cloning nil yields an empty row.
func (r *Row) Clone() *Row {
	out := &Row{values: make(map[string]jsonvalue.Value)}
	if r == nil {
		return out
	}
	out.keys = append(make([]string, 0, len(r.keys)), r.keys...)
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// Equal reports whether both rows hold the same keys, in the same order, with equal values.
func (r *Row) Equal(o *Row) bool {
	if r.Len() != o.Len() {
		return false
	}
	for i, k := range r.Keys() {
		if o.keys[i] != k || !r.values[k].Equal(o.values[k]) {
			return false
		}
	}
	return true
}

// Object returns the row as a JSON object value.
func (r *Row) Object() jsonvalue.Value {
	if r == nil {
		return jsonvalue.Object()
	}
	members := make([]jsonvalue.Member, 0, r.Len())
	for _, k := range r.keys {
		members = append(members, jsonvalue.Member{Key: k, Value: r.values[k]})
	}
	return jsonvalue.Object(members...)
}

// MarshalJSON encodes the row as an object in key order.
func (r *Row) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return r.Object().MarshalJSON()
}

// String renders the row as compact JSON.
func (r *Row) String() string {
	b, _ := r.MarshalJSON()
	return string(b)
}
