// Package odm maps Go struct types onto document collections. A
// Collection binds a schema type to a driver; queries are built from
// typed field expressions and executed through the driver interface.
package odm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/mnohosten/laura-odm/pkg/codec"
	"github.com/mnohosten/laura-odm/pkg/driver"
	"github.com/mnohosten/laura-odm/pkg/expression"
	"github.com/mnohosten/laura-odm/pkg/schema"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrNotSaved is returned when an operation needs a stored document
	// but the document has no identifier yet
	ErrNotSaved = errors.New("document has not been saved")
)

// Collection binds a schema type T to a named collection on a driver.
// It is safe for concurrent use.
type Collection[T any] struct {
	driver driver.Driver
	name   string
	typ    reflect.Type

	mu      sync.Mutex
	pending []pendingIndex
	applied map[string]bool
}

type pendingIndex struct {
	key  string
	spec driver.IndexSpec
}

// Option configures a collection binding.
type Option func(*options)

type options struct {
	name string
}

// WithName overrides the derived collection name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// ForCollection binds the schema type T to a collection on the driver.
// The collection name is derived from the type name unless overridden
// with WithName or a CollectionNamer implementation on T.
func ForCollection[T any](drv driver.Driver, opts ...Option) *Collection[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	typ := schema.Resolve(reflect.TypeOf(zero))

	return &Collection[T]{
		driver:  drv,
		name:    schema.CollectionName(typ, o.name),
		typ:     typ,
		applied: make(map[string]bool),
	}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Driver returns the underlying driver.
func (c *Collection[T]) Driver() driver.Driver { return c.driver }

// Field resolves a dotted field path against the schema type and
// returns a typed field expression for it. Paths use wire names, so
// "friends.username" traverses a []Friend field into its element
// struct. Unknown fields and descents into scalars are errors.
func (c *Collection[T]) Field(path string) (*expression.FieldExpression, error) {
	field, err := schema.FieldByPath(c.typ, path)
	if err != nil {
		return nil, err
	}
	return expression.NewField(path, field.Type), nil
}

// MustField is like Field but panics on an invalid path. It is meant
// for statically known paths, in the manner of template.Must.
func (c *Collection[T]) MustField(path string) *expression.FieldExpression {
	f, err := c.Field(path)
	if err != nil {
		panic(fmt.Sprintf("odm: %v", err))
	}
	return f
}

// Find starts a query. Multiple filters combine under $and, so two
// conditions on the same field both apply; an empty filter list
// matches every document.
func (c *Collection[T]) Find(filters ...*expression.FilterExpression) *Query[T] {
	filter := expression.NewFilter()
	switch len(filters) {
	case 0:
	case 1:
		filter.WithExpression(filters[0].Serialize())
	default:
		clauses := make([]any, 0, len(filters))
		for _, f := range filters {
			clauses = append(clauses, f.Serialize())
		}
		filter.WithExpression(map[string]any{"$and": clauses})
	}
	return &Query[T]{
		collection: c,
		filter:     filter,
		mutations:  expression.NewMutationContext(),
	}
}

// FindOne returns the first document matching the filters, or (nil,
// nil) when nothing matches.
func (c *Collection[T]) FindOne(ctx context.Context, filters ...*expression.FilterExpression) (*Document[T], error) {
	if err := c.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	query := c.Find(filters...).filter.Serialize()
	raw, err := c.driver.FindOne(ctx, c.name, query)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return c.hydrate(raw)
}

// Insert stores the given models and returns their document handles
// with assigned identifiers.
func (c *Collection[T]) Insert(ctx context.Context, models ...*T) ([]*Document[T], error) {
	if len(models) == 0 {
		return nil, nil
	}

	if err := c.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	docs := make([]*Document[T], len(models))
	flattened := make([]map[string]any, len(models))
	for i, model := range models {
		docs[i] = c.Doc(model)
		m, err := docs[i].Map()
		if err != nil {
			return nil, err
		}
		flattened[i] = m
	}

	if len(models) == 1 {
		result, err := c.driver.InsertOne(ctx, c.name, flattened[0])
		if err != nil {
			return nil, err
		}
		docs[0].id = result.InsertedID
		return docs, nil
	}

	result, err := c.driver.InsertMany(ctx, c.name, flattened)
	if err != nil {
		return nil, err
	}
	for i, id := range result.InsertedIDs {
		if i < len(docs) {
			docs[i].id = id
		}
	}
	return docs, nil
}

// Doc wraps a model in a document handle bound to this collection.
func (c *Collection[T]) Doc(model *T) *Document[T] {
	return &Document[T]{collection: c, model: model}
}

// UseIndex registers an index to be created before the next query
// runs. Multiple expressions passed in one call form a single compound
// index. Registering an index equal to one already registered is a
// no-op.
func (c *Collection[T]) UseIndex(parts ...*expression.IndexExpression) {
	if len(parts) == 0 {
		return
	}

	spec := driver.IndexSpec{Parts: make([]driver.IndexPart, len(parts))}
	for i, part := range parts {
		spec.Parts[i] = driver.IndexPart{
			Keys:    part.Serialize(),
			Options: part.BuildOptions(),
		}
	}

	key := specKey(spec)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.applied[key] {
		return
	}
	for _, p := range c.pending {
		if p.key == key {
			return
		}
	}
	c.pending = append(c.pending, pendingIndex{key: key, spec: spec})
}

// ensureIndexes creates every pending index. Successfully created
// indexes are not created again; a failed creation stays pending.
func (c *Collection[T]) ensureIndexes(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.pending[:0]
	var firstErr error
	for _, p := range c.pending {
		if firstErr != nil {
			remaining = append(remaining, p)
			continue
		}
		if err := c.driver.CreateIndex(ctx, c.name, p.spec); err != nil {
			firstErr = err
			remaining = append(remaining, p)
			continue
		}
		c.applied[p.key] = true
	}
	c.pending = remaining
	return firstErr
}

// Watch opens a change stream for the collection. Drivers that cannot
// stream changes return ErrNotSupported.
func (c *Collection[T]) Watch(ctx context.Context) (<-chan driver.ChangeEvent, error) {
	streamer, ok := c.driver.(driver.ChangeStreamer)
	if !ok {
		return nil, fmt.Errorf("change streams: %w", driver.ErrNotSupported)
	}
	return streamer.Changes(ctx, c.name)
}

// hydrate builds a document handle from a raw stored document.
func (c *Collection[T]) hydrate(raw map[string]any) (*Document[T], error) {
	restored := codec.RestoreDocument(raw)

	id, _ := raw["_id"].(string)

	data, err := jsonAPI.Marshal(restored)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate document: %w", err)
	}

	model := new(T)
	if err := jsonAPI.Unmarshal(data, model); err != nil {
		return nil, fmt.Errorf("failed to hydrate document: %w", err)
	}

	return &Document[T]{collection: c, model: model, id: id}, nil
}

// specKey returns a canonical identity string for an index spec. The
// canonical form relies on encoding/json's sorted map keys.
func specKey(spec driver.IndexSpec) string {
	data, err := json.Marshal(spec)
	if err != nil {
		panic(fmt.Sprintf("odm: index spec not serializable: %v", err))
	}
	return string(data)
}
