// Package optional distinguishes an omitted request field from one explicitly set,
// including explicitly set to its zero value.
package optional

import (
	"bytes"
	"encoding/json"
)

type Value[T any] struct {
	value T
	set   bool
	null  bool
}

func Of[T any](v T) Value[T] {
	return Value[T]{value: v, set: true}
}

func None[T any]() Value[T] {
	return Value[T]{}
}

func (v Value[T]) IsSet() bool {
	return v.set
}

func (v Value[T]) Get() (T, bool) {
	return v.value, v.set
}

// IsNull reports whether the field was present as an explicit JSON null.
func (v Value[T]) IsNull() bool {
	return v.null
}

// OrElse returns the held value when set, otherwise fallback.
func (v Value[T]) OrElse(fallback T) T {
	if v.set {
		return v.value
	}
	return fallback
}

// UnmarshalJSON is only invoked for keys present in the payload, so reaching it marks the
// field as set. A JSON null sets the zero value.
func (v *Value[T]) UnmarshalJSON(data []byte) error {
	v.set = true
	v.null = bytes.Equal(bytes.TrimSpace(data), []byte("null"))
	if v.null {
		var zero T
		v.value = zero
		return nil
	}
	return json.Unmarshal(data, &v.value)
}

func (v Value[T]) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	return json.Marshal(v.value)
}
