package jsonvalue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrSyntax is the kind of every decode failure.
var ErrSyntax = errors.New("invalid json document")

// Parse decodes exactly one JSON document from data.
func Parse(data []byte) (Value, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads exactly one JSON document from r. Trailing non-space input is an error.
func Decode(r io.Reader) (Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("%w: trailing data after document", ErrSyntax)
	}
	return v, nil
}

// UnmarshalJSON lets a Value be a field of a struct decoded by encoding/json.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("%w: %w", ErrSyntax, err)
	}
	return decodeFrom(dec, tok)
}

func decodeFrom(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			return decodeArray(dec)
		case '{':
			return decodeObject(dec)
		}
		return Value{}, fmt.Errorf("%w: unexpected delimiter %q", ErrSyntax, rune(t))
	}
	return Value{}, fmt.Errorf("%w: unexpected token %T", ErrSyntax, tok)
}

func decodeArray(dec *json.Decoder) (Value, error) {
	items := []Value{}
	for dec.More() {
		it, err := decodeValue(dec)
		if err != nil {
			return Value{}, err
		}
		items = append(items, it)
	}
	if _, err := dec.Token(); err != nil { // ']'
		return Value{}, fmt.Errorf("%w: %w", ErrSyntax, err)
	}
	return Array(items...), nil
}

func decodeObject(dec *json.Decoder) (Value, error) {
	obj := Value{kind: KindObject, members: []Member{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %w", ErrSyntax, err)
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("%w: object key is %T", ErrSyntax, tok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return Value{}, err
		}
		obj.set(key, val)
	}
	if _, err := dec.Token(); err != nil { // '}'
		return Value{}, fmt.Errorf("%w: %w", ErrSyntax, err)
	}
	return obj, nil
}
