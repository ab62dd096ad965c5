package odm

import (
	"context"
	"fmt"

	"github.com/mnohosten/laura-odm/pkg/codec"
)

// Document is a handle on one model instance bound to a collection. A
// freshly wrapped model has no identifier until its first Save; a
// hydrated document carries the identifier it was stored under.
type Document[T any] struct {
	collection *Collection[T]
	model      *T
	id         string
}

// Model returns the wrapped model.
func (d *Document[T]) Model() *T { return d.model }

// ID returns the stored identifier, or "" when the document has not
// been saved yet.
func (d *Document[T]) ID() string { return d.id }

// Map returns the document's wire form: the flattened model plus the
// identifier, when one is assigned.
func (d *Document[T]) Map() (map[string]any, error) {
	m, err := codec.Flatten(d.model)
	if err != nil {
		return nil, err
	}
	if d.id != "" {
		m["_id"] = d.id
	}
	return m, nil
}

// Save stores the document. An unsaved document is inserted and gets
// its identifier assigned; a saved document is written back as a full
// $set update of its current field values.
func (d *Document[T]) Save(ctx context.Context) error {
	if err := d.collection.ensureIndexes(ctx); err != nil {
		return err
	}

	m, err := d.Map()
	if err != nil {
		return err
	}

	if d.id == "" {
		result, err := d.collection.driver.InsertOne(ctx, d.collection.name, m)
		if err != nil {
			return err
		}
		d.id = result.InsertedID
		return nil
	}

	delete(m, "_id")
	_, err = d.collection.driver.UpdateOne(ctx, d.collection.name,
		map[string]any{"_id": d.id},
		map[string]any{"$set": m},
		true)
	return err
}

// Delete removes the stored document. Deleting an unsaved document is
// an error.
func (d *Document[T]) Delete(ctx context.Context) error {
	if d.id == "" {
		return fmt.Errorf("cannot delete: %w", ErrNotSaved)
	}

	result, err := d.collection.driver.DeleteOne(ctx, d.collection.name,
		map[string]any{"_id": d.id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("document '%s' not found in '%s'", d.id, d.collection.name)
	}

	d.id = ""
	return nil
}

// Refresh reloads the model from the store by identifier.
func (d *Document[T]) Refresh(ctx context.Context) error {
	if d.id == "" {
		return fmt.Errorf("cannot refresh: %w", ErrNotSaved)
	}

	raw, err := d.collection.driver.FindOne(ctx, d.collection.name,
		map[string]any{"_id": d.id})
	if err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("document '%s' not found in '%s'", d.id, d.collection.name)
	}

	fresh, err := d.collection.hydrate(raw)
	if err != nil {
		return err
	}
	*d.model = *fresh.model
	return nil
}
