// Package schema resolves struct types into the field metadata the query
// DSL needs: wire names, resolved field types, and dotted-path traversal
// through nested objects and arrays of objects.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrNoSuchField is returned when a path segment names a field the
	// target type does not declare
	ErrNoSuchField = errors.New("no such field")

	// ErrNotTraversable is returned when dot notation descends into a
	// field whose type is a scalar, not an object
	ErrNotTraversable = errors.New("field is not traversable")

	// ErrNoElementType is returned when an array field's element type
	// cannot be determined
	ErrNoElementType = errors.New("cannot determine element type")

	// ErrNotStruct is returned when a schema type is not a struct
	ErrNotStruct = errors.New("schema type must be a struct")
)

// Kind classifies a resolved field type
type Kind int

const (
	KindScalar Kind = iota
	KindObject
	KindArray
)

// Resolve strips pointer wrappers from a type until it reaches the
// concrete declared type. Pointers are the Go counterpart of optional
// fields, so *string resolves to string and **T to T.
func Resolve(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// KindOf classifies a resolved type as scalar, object, or array.
// Byte slices and strings count as scalars; time-like structs that
// marshal to a single JSON value are still objects here and are handled
// by the codec layer, not traversal.
func KindOf(t reflect.Type) Kind {
	t = Resolve(t)
	if t == nil {
		return KindScalar
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return KindScalar
		}
		return KindArray
	case reflect.Struct:
		return KindObject
	default:
		return KindScalar
	}
}

// Field describes one declared field of a schema type.
type Field struct {
	// Name is the wire name of the field (bson tag, json tag, or the
	// lower-cased Go name, in that order of preference)
	Name string

	// Type is the field's resolved type
	Type reflect.Type

	// Kind classifies Type
	Kind Kind
}

// FieldByName looks up a single declared field on a struct type by its
// wire name.
func FieldByName(t reflect.Type, name string) (Field, error) {
	t = Resolve(t)
	if t == nil || t.Kind() != reflect.Struct {
		return Field{}, fmt.Errorf("%w: %s", ErrNotStruct, typeName(t))
	}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		wire, ok := wireName(sf)
		if !ok {
			continue
		}
		if wire == name {
			rt := Resolve(sf.Type)
			return Field{Name: wire, Type: rt, Kind: KindOf(rt)}, nil
		}
	}

	return Field{}, fmt.Errorf("'%s' has no field named '%s': %w", typeName(t), name, ErrNoSuchField)
}

// FieldByPath resolves a dotted path against a schema type, descending
// through nested objects. Traversal through an array field continues
// into the array's element type, so "friends.username" resolves against
// the element struct of a []Friend field.
func FieldByPath(t reflect.Type, path string) (Field, error) {
	segments := strings.Split(path, ".")

	current := Resolve(t)
	var field Field

	for i, segment := range segments {
		if i > 0 {
			// Descend into the previous segment's type before
			// looking up the next one.
			next, err := traversalTarget(field)
			if err != nil {
				return Field{}, err
			}
			current = next
		}

		f, err := FieldByName(current, segment)
		if err != nil {
			return Field{}, err
		}
		field = f
	}

	return field, nil
}

// traversalTarget returns the type dot notation descends into for a
// field: the field type for objects, the element type for arrays.
func traversalTarget(f Field) (reflect.Type, error) {
	t := f.Type
	if f.Kind == KindArray {
		t = Resolve(t.Elem())
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("'%s' is not an object but a scalar value: %w", typeName(t), ErrNotTraversable)
	}
	return t, nil
}

// ElementType returns the resolved element type of an array field.
func ElementType(t reflect.Type) reflect.Type {
	t = Resolve(t)
	if t == nil {
		return nil
	}
	if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
		return nil
	}
	return Resolve(t.Elem())
}

// wireName derives the wire name of a struct field from its tags. A
// "-" tag excludes the field.
func wireName(sf reflect.StructField) (string, bool) {
	for _, tag := range []string{"bson", "json"} {
		v, ok := sf.Tag.Lookup(tag)
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(v, ",")
		if name == "-" {
			return "", false
		}
		if name != "" {
			return name, true
		}
	}
	return strings.ToLower(sf.Name), true
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
