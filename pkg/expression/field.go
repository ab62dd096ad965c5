package expression

import (
	"fmt"
	"reflect"

	"github.com/mnohosten/laura-odm/pkg/codec"
	"github.com/mnohosten/laura-odm/pkg/schema"
)

// FieldKind discriminates the closed set of field expression variants.
type FieldKind int

const (
	// KindScalar is a plain field whose comparisons compile to
	// {path: {op: value}}
	KindScalar FieldKind = iota

	// KindArray adds containment and size operations
	KindArray

	// KindArraySize is the synthetic length of an array field; its
	// comparisons compile to a $expr/$size form
	KindArraySize
)

// FieldExpression is a typed handle to one (possibly nested) field
// path. It builds filters from comparisons, participates in sort
// specifications, and seeds index builders. Expressions are immutable;
// every derivation returns a new value.
type FieldExpression struct {
	path      string
	typ       reflect.Type
	kind      FieldKind
	ascending bool
}

// NewField creates a field expression for a path and its resolved type.
// The variant is chosen from the type: slice and array types (except
// byte slices) become array expressions.
func NewField(path string, typ reflect.Type) *FieldExpression {
	kind := KindScalar
	if schema.KindOf(typ) == schema.KindArray {
		kind = KindArray
	}
	return &FieldExpression{
		path:      path,
		typ:       schema.Resolve(typ),
		kind:      kind,
		ascending: true,
	}
}

// Path returns the full dotted field path.
func (f *FieldExpression) Path() string { return f.path }

// Type returns the resolved type at this path.
func (f *FieldExpression) Type() reflect.Type { return f.typ }

// Kind returns the expression variant.
func (f *FieldExpression) Kind() FieldKind { return f.kind }

// Ascending reports the sort direction carried by this expression.
func (f *FieldExpression) Ascending() bool { return f.ascending }

// Desc returns a copy of the expression with descending sort order,
// for use in sort specifications.
func (f *FieldExpression) Desc() *FieldExpression {
	clone := *f
	clone.ascending = false
	return &clone
}

// Asc returns a copy of the expression with ascending sort order.
func (f *FieldExpression) Asc() *FieldExpression {
	clone := *f
	clone.ascending = true
	return &clone
}

// Eq builds an equality filter.
func (f *FieldExpression) Eq(value any) *FilterExpression { return f.compare("$eq", value) }

// Ne builds an inequality filter.
func (f *FieldExpression) Ne(value any) *FilterExpression { return f.compare("$ne", value) }

// Gt builds a greater-than filter.
func (f *FieldExpression) Gt(value any) *FilterExpression { return f.compare("$gt", value) }

// Gte builds a greater-than-or-equal filter.
func (f *FieldExpression) Gte(value any) *FilterExpression { return f.compare("$gte", value) }

// Lt builds a less-than filter.
func (f *FieldExpression) Lt(value any) *FilterExpression { return f.compare("$lt", value) }

// Lte builds a less-than-or-equal filter.
func (f *FieldExpression) Lte(value any) *FilterExpression { return f.compare("$lte", value) }

func (f *FieldExpression) compare(operator string, value any) *FilterExpression {
	value = codec.Normalize(value)

	if f.kind == KindArraySize {
		// Array length is not a storable field, so size comparisons
		// compile to an aggregation expression instead.
		return NewFilter().WithExpression(map[string]any{
			"$expr": map[string]any{
				operator: []any{map[string]any{"$size": "$" + f.path}, value},
			},
		})
	}

	return NewFilter().WithExpression(map[string]any{
		f.path: map[string]any{operator: value},
	})
}

// Child resolves one nested field and returns a new expression with the
// path extended by that segment. Traversal through an array expression
// goes through the array's element type. Referencing a field the nested
// type does not declare, or descending into a scalar, is an error.
func (f *FieldExpression) Child(name string) (*FieldExpression, error) {
	target := f.typ
	if f.kind == KindArray {
		target = schema.ElementType(f.typ)
		if target == nil {
			return nil, fmt.Errorf("%w for array field '%s'", schema.ErrNoElementType, f.path)
		}
	}

	child, err := schema.FieldByName(target, name)
	if err != nil {
		return nil, err
	}

	return NewField(f.path+"."+child.Name, child.Type), nil
}

// Size returns the array-size expression for an array field. Its
// comparisons compile to {"$expr": {op: [{"$size": "$path"}, value]}}.
// Size panics when called on a non-array expression, the same way
// reflect.Value panics on kind misuse.
func (f *FieldExpression) Size() *FieldExpression {
	f.mustBeArray("Size")
	return &FieldExpression{
		path:      f.path,
		typ:       f.typ,
		kind:      KindArraySize,
		ascending: f.ascending,
	}
}

// Contains builds a $in filter checking the array for a value. It
// panics when called on a non-array expression.
func (f *FieldExpression) Contains(value any) *FilterExpression {
	f.mustBeArray("Contains")
	return NewFilter().WithExpression(map[string]any{
		f.path: map[string]any{"$in": normalizeList(value)},
	})
}

// Excludes builds a $nin filter checking the array for the absence of a
// value. It panics when called on a non-array expression.
func (f *FieldExpression) Excludes(value any) *FilterExpression {
	f.mustBeArray("Excludes")
	return NewFilter().WithExpression(map[string]any{
		f.path: map[string]any{"$nin": normalizeList(value)},
	})
}

// Matches builds a filter checking the array against a set of values.
// With matchOrder the filter is an exact ordered equality; without it
// the filter uses $all, matching arrays that contain every value in
// any order. It panics when called on a non-array expression.
func (f *FieldExpression) Matches(values []any, matchOrder bool) *FilterExpression {
	f.mustBeArray("Matches")

	normalized := make([]any, len(values))
	for i, v := range values {
		normalized[i] = codec.Normalize(v)
	}

	if matchOrder {
		return NewFilter().WithExpression(map[string]any{f.path: normalized})
	}
	return NewFilter().WithExpression(map[string]any{
		f.path: map[string]any{"$all": normalized},
	})
}

// AsIndex returns an index builder pre-seeded with this field's path
// and sort order. String fields default to a TEXT index type.
func (f *FieldExpression) AsIndex() *IndexExpressionBuilder {
	order := Ascending
	if !f.ascending {
		order = Descending
	}

	builder := NewIndexBuilder(f.path).UseSortOrder(order)

	if f.kind == KindScalar && f.typ != nil && f.typ.Kind() == reflect.String {
		return builder.UseIndexType(IndexTypeText)
	}
	return builder
}

// ToIndex builds a ready-to-register index expression with the default
// configuration for this field.
func (f *FieldExpression) ToIndex() *IndexExpression {
	return f.AsIndex().Build()
}

func (f *FieldExpression) mustBeArray(op string) {
	if f.kind != KindArray {
		panic(fmt.Sprintf("expression: %s called on non-array field '%s'", op, f.path))
	}
}

// normalizeList normalizes a scalar or a slice of values for embedding
// in a containment filter.
func normalizeList(value any) any {
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = codec.Normalize(rv.Index(i).Interface())
		}
		return out
	}
	return codec.Normalize(value)
}
