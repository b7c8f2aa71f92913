// Package metadata converts the opaque metadata attached to an update to and from its persisted text form.
//
// Metadata is any JSON representable value: an object, a number, a string, a boolean or null.
// Decoded values use the encoding/json default types (map[string]any, []any, float64, string, bool and nil).
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSerialization is wrapped by every error of this package.
var ErrSerialization = errors.New("metadata serialization failed")

type nullValue struct{}

func (nullValue) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Null persists an explicit JSON null.
// A nil metadata value means that no metadata was supplied at all.
var Null any = nullValue{}

// IsNull reports whether v is the explicit null sentinel.
func IsNull(v any) bool {
	_, ok := v.(nullValue)
	return ok
}

// Validate reports whether v can be represented as JSON.
// NaN and infinite numbers, channels, functions and cyclic values are rejected.
func Validate(v any) error {
	_, err := Serialize(v)
	return err
}

// Serialize returns the JSON text of v.
func Serialize(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return string(data), nil
}

// Deserialize parses persisted metadata text.
// Text that is not exactly one JSON value is an error and never defaults to an empty value.
func Deserialize(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return v, nil
}

// Normalize maps v to the representation Deserialize produces,
// e.g. structs become map[string]any and integers become float64.
func Normalize(v any) (any, error) {
	s, err := Serialize(v)
	if err != nil {
		return nil, err
	}
	return Deserialize(s)
}
