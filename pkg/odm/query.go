package odm

import (
	"context"
	"errors"
	"fmt"

	"github.com/mnohosten/laura-odm/pkg/driver"
	"github.com/mnohosten/laura-odm/pkg/expression"
)

var (
	// ErrNoMutations is returned by Mutate when nothing has been
	// recorded on the query
	ErrNoMutations = errors.New("no mutations recorded")
)

// Query is a reusable handle on a filtered subset of a collection. It
// carries pagination and sort state for reads, and its own mutation
// context for writes. Builder methods mutate the query in place and
// return it for chaining.
type Query[T any] struct {
	collection *Collection[T]
	filter     *expression.FilterExpression
	sort       []driver.SortField
	skip       *int
	limit      *int
	mutations  *expression.MutationContext
	err        error
}

// Filter returns the query's filter expression.
func (q *Query[T]) Filter() *expression.FilterExpression { return q.filter }

// Skip sets the number of matching documents to skip.
func (q *Query[T]) Skip(n int) *Query[T] {
	q.skip = &n
	return q
}

// Limit caps the number of returned documents.
func (q *Query[T]) Limit(n int) *Query[T] {
	q.limit = &n
	return q
}

// Sort appends sort fields in priority order. A field's direction is
// the one carried by the expression, so pass field.Desc() for a
// descending key.
func (q *Query[T]) Sort(fields ...*expression.FieldExpression) *Query[T] {
	for _, f := range fields {
		q.sort = append(q.sort, driver.SortField{Field: f.Path(), Ascending: f.Ascending()})
	}
	return q
}

// Params returns the driver parameter bundle for this query.
func (q *Query[T]) Params() driver.FindParams {
	return driver.FindParams{
		Query: q.filter.Serialize(),
		Sort:  q.sort,
		Skip:  q.skip,
		Limit: q.limit,
	}
}

// Count returns the number of matching documents. Skip and limit do
// not apply.
func (q *Query[T]) Count(ctx context.Context) (int, error) {
	if err := q.collection.ensureIndexes(ctx); err != nil {
		return 0, err
	}
	return q.collection.driver.Count(ctx, q.collection.name, q.filter.Serialize())
}

// Exists reports whether any document matches.
func (q *Query[T]) Exists(ctx context.Context) (bool, error) {
	if err := q.collection.ensureIndexes(ctx); err != nil {
		return false, err
	}
	return q.collection.driver.Exists(ctx, q.collection.name, q.filter.Serialize())
}

// All fetches every matching document, honoring sort, skip and limit.
func (q *Query[T]) All(ctx context.Context) ([]*Document[T], error) {
	if err := q.collection.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	raws, err := q.collection.driver.FindMany(ctx, q.collection.name, q.Params())
	if err != nil {
		return nil, err
	}

	docs := make([]*Document[T], 0, len(raws))
	for _, raw := range raws {
		doc, err := q.collection.hydrate(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Each fetches every matching document and invokes fn for each one,
// stopping at the first error.
func (q *Query[T]) Each(ctx context.Context, fn func(*Document[T]) error) error {
	docs, err := q.All(ctx)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// Set records a $set mutation assigning the field.
func (q *Query[T]) Set(field *expression.FieldExpression, value any) *Query[T] {
	return q.Apply(expression.NewMutation(expression.OpSet, field.Path(), value))
}

// Inc records a $inc mutation adding delta to the field. Recording
// another Inc for the same field replaces the earlier delta.
func (q *Query[T]) Inc(field *expression.FieldExpression, delta float64) *Query[T] {
	return q.Apply(expression.NewMutation(expression.OpInc, field.Path(), delta))
}

// Dec records a $inc mutation subtracting delta from the field.
func (q *Query[T]) Dec(field *expression.FieldExpression, delta float64) *Query[T] {
	return q.Apply(expression.NewMutation(expression.OpInc, field.Path(), -delta))
}

// Mul records a $mul mutation multiplying the field by factor.
func (q *Query[T]) Mul(field *expression.FieldExpression, factor float64) *Query[T] {
	return q.Apply(expression.NewMutation(expression.OpMul, field.Path(), factor))
}

// Div records a $mul mutation dividing the field by divisor. Division
// by zero is recorded as a query error and surfaced by Mutate.
func (q *Query[T]) Div(field *expression.FieldExpression, divisor float64) *Query[T] {
	if divisor == 0 {
		if q.err == nil {
			q.err = fmt.Errorf("division by zero on field '%s'", field.Path())
		}
		return q
	}
	return q.Apply(expression.NewMutation(expression.OpMul, field.Path(), 1/divisor))
}

// Push records a $push mutation appending value to an array field.
func (q *Query[T]) Push(field *expression.FieldExpression, value any) *Query[T] {
	return q.Apply(expression.NewMutation(expression.OpPush, field.Path(), value))
}

// Pop records a $pop mutation removing the last element of an array
// field.
func (q *Query[T]) Pop(field *expression.FieldExpression) *Query[T] {
	return q.Apply(expression.NewMutation(expression.OpPop, field.Path(), 1))
}

// PopFirst records a $pop mutation removing the first element of an
// array field.
func (q *Query[T]) PopFirst(field *expression.FieldExpression) *Query[T] {
	return q.Apply(expression.NewMutation(expression.OpPop, field.Path(), -1))
}

// Pull records a $pull mutation removing every element equal to value
// from an array field.
func (q *Query[T]) Pull(field *expression.FieldExpression, value any) *Query[T] {
	return q.Apply(expression.NewMutation(expression.OpPull, field.Path(), value))
}

// AddToSet records a $addToSet mutation appending value to an array
// field unless already present.
func (q *Query[T]) AddToSet(field *expression.FieldExpression, value any) *Query[T] {
	return q.Apply(expression.NewMutation(expression.OpAddToSet, field.Path(), value))
}

// Apply records an arbitrary mutation expression.
func (q *Query[T]) Apply(m *expression.MutationExpression) *Query[T] {
	q.mutations.Add(m)
	return q
}

// Mutations returns a snapshot of the recorded update document.
func (q *Query[T]) Mutations() map[string]any {
	return q.mutations.Mutations()
}

// Mutate applies the recorded mutations to every matching document.
// The recorded state is cleared only on success, so a failed Mutate
// can be retried.
func (q *Query[T]) Mutate(ctx context.Context) (*driver.UpdateResult, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.mutations.Len() == 0 {
		return nil, ErrNoMutations
	}

	if err := q.collection.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	result, err := q.collection.driver.UpdateMany(ctx, q.collection.name,
		q.filter.Serialize(), q.mutations.Mutations())
	if err != nil {
		return nil, err
	}

	q.mutations.Clear()
	return result, nil
}
