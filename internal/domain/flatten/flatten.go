// Package flatten turns nested JSON documents into flat rows suitable for
// tabular export.
//
// Object members become columns named by their underscore-joined path.
// Arrays are not expanded: the whole array is stored as its compact JSON
// encoding in a single string column.
package flatten

import (
	"github.com/okian/solarbatch/internal/domain/jsonvalue"
)

// Column names injected ahead of response-derived columns.
const (
	RequestLatitudeKey  = "request_latitude"
	RequestLongitudeKey = "request_longitude"
)

// Separator joins nested object keys.
const Separator = "_"

// Flatten copies seed and then records every leaf of v under its path
// relative to prefix. Later writes win on key collisions, so a nested path
// equal to a seed key overwrites the seed value in place.
func Flatten(v jsonvalue.Value, seed *Row, prefix string) *Row {
	out := seed.Clone()
	walk(out, v, prefix)
	return out
}

func walk(out *Row, v jsonvalue.Value, path string) {
	switch v.Kind() {
	case jsonvalue.KindNull:
		out.Set(path, jsonvalue.Null())
	case jsonvalue.KindArray:
		out.Set(path, jsonvalue.String(v.Compact()))
	case jsonvalue.KindObject:
		for _, m := range v.Members() {
			walk(out, m.Value, join(path, m.Key))
		}
	case jsonvalue.KindBool, jsonvalue.KindNumber, jsonvalue.KindString:
		out.Set(path, v)
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + Separator + key
}

// Seed returns the request echo columns for a coordinate.
func Seed(latitude, longitude float64) *Row {
	r := NewRow()
	r.Set(RequestLatitudeKey, jsonvalue.Float(latitude))
	r.Set(RequestLongitudeKey, jsonvalue.Float(longitude))
	return r
}
