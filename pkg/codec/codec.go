// Package codec normalizes non-native scalar values (timestamps, UUIDs)
// into their wire representation before they are embedded in queries or
// update payloads, and restores them when raw documents come back. Every
// normalization is reversible; values the registry does not recognize
// pass through untouched in both directions.
package codec

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Codec converts one registered Go type to and from its wire form.
type Codec struct {
	// Normalize converts a Go value to its wire form. It reports false
	// when the value is not of the codec's type.
	Normalize func(v any) (any, bool)

	// Restore converts a wire value back to its Go form. It reports
	// false when the value is not recognized, in which case the raw
	// stored value is kept as-is.
	Restore func(v any) (any, bool)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[reflect.Type]Codec)
	restorers  []Codec
)

// Register adds a codec for a Go type. Restoration order follows
// registration order.
func Register(t reflect.Type, c Codec) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = c
	restorers = append(restorers, c)
}

func init() {
	Register(reflect.TypeOf(time.Time{}), Codec{
		Normalize: func(v any) (any, bool) {
			t, ok := v.(time.Time)
			if !ok {
				return nil, false
			}
			return t.UTC().Format(time.RFC3339Nano), true
		},
		Restore: func(v any) (any, bool) {
			s, ok := v.(string)
			if !ok {
				return nil, false
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, false
			}
			return t, true
		},
	})

	Register(reflect.TypeOf(uuid.UUID{}), Codec{
		Normalize: func(v any) (any, bool) {
			id, ok := v.(uuid.UUID)
			if !ok {
				return nil, false
			}
			return id.String(), true
		},
		Restore: func(v any) (any, bool) {
			s, ok := v.(string)
			if !ok || len(s) != 36 {
				return nil, false
			}
			id, err := uuid.Parse(s)
			if err != nil {
				return nil, false
			}
			return id, true
		},
	})
}

// Normalize converts a value to its wire form. Registered scalar types
// are serialized by their codec, struct values are flattened to plain
// maps, and everything else passes through unchanged.
func Normalize(v any) any {
	if v == nil {
		return nil
	}

	registryMu.RLock()
	c, ok := registry[reflect.TypeOf(v)]
	registryMu.RUnlock()
	if ok {
		if wire, done := c.Normalize(v); done {
			return wire
		}
	}

	t := Resolve(reflect.TypeOf(v))
	if t.Kind() == reflect.Struct {
		if m, err := Flatten(v); err == nil {
			return m
		}
	}

	return v
}

// Resolve strips pointer wrappers from a type.
func Resolve(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// Flatten serializes a schema value into its plain-map wire form.
func Flatten(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to flatten value: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to flatten value: %w", err)
	}
	return m, nil
}

// Restore converts a single wire value back to its Go form using the
// first codec that recognizes it. Unrecognized values are returned
// untouched.
func Restore(v any) any {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, c := range restorers {
		if restored, ok := c.Restore(v); ok {
			return restored
		}
	}
	return v
}

// RestoreDocument walks a raw document and restores every recognized
// wire value in place of its stored form. Nested documents and arrays
// are restored recursively; anything unrecognized keeps its raw stored
// value.
func RestoreDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}

	restored := make(map[string]any, len(doc))
	for key, value := range doc {
		restored[key] = restoreValue(value)
	}
	return restored
}

func restoreValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return RestoreDocument(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = restoreValue(elem)
		}
		return out
	default:
		return Restore(v)
	}
}
