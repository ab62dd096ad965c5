// Package expression implements the query and mutation DSL: boolean
// filter expressions, typed field expressions with dotted-path
// traversal, index expressions with LauraDB-style modifiers, and the
// mutation context that accumulates update operations for a builder.
package expression

// FilterExpression is a composable boolean query fragment. Comparisons
// on field expressions produce filters; filters combine with And, Or,
// and Not into larger filters. Binary combinators never mutate their
// operands.
type FilterExpression struct {
	expression map[string]any
}

// NewFilter creates an empty filter expression, which matches every
// document.
func NewFilter() *FilterExpression {
	return &FilterExpression{expression: make(map[string]any)}
}

// NewFilterFrom creates a filter expression wrapping an existing query
// mapping.
func NewFilterFrom(expr map[string]any) *FilterExpression {
	if expr == nil {
		expr = make(map[string]any)
	}
	return &FilterExpression{expression: expr}
}

// WithExpression merges a raw query mapping into the filter's state and
// returns the filter for chaining.
func (f *FilterExpression) WithExpression(expr map[string]any) *FilterExpression {
	for key, value := range expr {
		f.expression[key] = value
	}
	return f
}

// Serialize returns the accumulated query mapping.
func (f *FilterExpression) Serialize() map[string]any {
	return f.expression
}

// And combines two filters into a new $and expression. Neither operand
// is modified.
func (f *FilterExpression) And(other *FilterExpression) *FilterExpression {
	return NewFilterFrom(map[string]any{
		"$and": []any{f.expression, other.expression},
	})
}

// Or combines two filters into a new $or expression. Neither operand
// is modified.
func (f *FilterExpression) Or(other *FilterExpression) *FilterExpression {
	return NewFilterFrom(map[string]any{
		"$or": []any{f.expression, other.expression},
	})
}

// Not wraps the filter in a new $not expression.
func (f *FilterExpression) Not() *FilterExpression {
	return NewFilterFrom(map[string]any{
		"$not": f.expression,
	})
}
