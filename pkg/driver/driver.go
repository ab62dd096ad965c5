// Package driver defines the narrow interface the ODM uses to talk to
// a document store, together with the result shapes and the error
// taxonomy shared by all implementations.
package driver

import (
	"context"
	"time"
)

// Driver is the storage boundary of the ODM. Implementations block on
// network or storage I/O; cancellation and timeouts travel through the
// context. A single-document lookup that finds nothing returns an
// absent result, never an error.
type Driver interface {
	// Connect establishes the connection to the store.
	Connect(ctx context.Context) error

	// Close releases the connection and its resources.
	Close(ctx context.Context) error

	// InsertOne inserts a single document.
	InsertOne(ctx context.Context, collection string, document map[string]any) (*InsertOneResult, error)

	// InsertMany inserts a batch of documents.
	InsertMany(ctx context.Context, collection string, documents []map[string]any) (*InsertManyResult, error)

	// FindOne returns the first document matching the query, or nil
	// when nothing matches.
	FindOne(ctx context.Context, collection string, query map[string]any) (map[string]any, error)

	// FindMany returns every document matching the query, honoring
	// sort, skip, and limit.
	FindMany(ctx context.Context, collection string, params FindParams) ([]map[string]any, error)

	// UpdateOne applies an update to the first matching document,
	// optionally inserting when nothing matches.
	UpdateOne(ctx context.Context, collection string, query, update map[string]any, upsert bool) (*UpdateResult, error)

	// UpdateMany applies an update to every matching document.
	UpdateMany(ctx context.Context, collection string, query, update map[string]any) (*UpdateResult, error)

	// DeleteOne removes the first matching document.
	DeleteOne(ctx context.Context, collection string, query map[string]any) (*DeleteResult, error)

	// Count returns the number of matching documents.
	Count(ctx context.Context, collection string, query map[string]any) (int, error)

	// Exists reports whether any document matches the query.
	Exists(ctx context.Context, collection string, query map[string]any) (bool, error)

	// CreateIndex creates one (possibly compound) index.
	CreateIndex(ctx context.Context, collection string, spec IndexSpec) error
}

// FindParams is the parameter bundle for FindMany.
type FindParams struct {
	// Query is the serialized filter expression
	Query map[string]any `json:"query"`

	// Sort lists sort fields in priority order
	Sort []SortField `json:"sort,omitempty"`

	// Skip is the number of documents to skip, when set
	Skip *int `json:"skip,omitempty"`

	// Limit caps the number of returned documents, when set
	Limit *int `json:"limit,omitempty"`
}

// SortField is one entry of a sort specification.
type SortField struct {
	Field     string `json:"field"`
	Ascending bool   `json:"ascending"`
}

// Order returns the wire form of the sort direction: 1 or -1.
func (s SortField) Order() int {
	if s.Ascending {
		return 1
	}
	return -1
}

// IndexPart is one field's contribution to an index: its key mapping
// ({field: sort order} or {field: index type}) plus its modifiers.
type IndexPart struct {
	Keys    map[string]any `json:"keys"`
	Options map[string]any `json:"options,omitempty"`
}

// IndexSpec is a full index declaration. Multiple parts form a single
// compound index, not independent indexes.
type IndexSpec struct {
	Parts []IndexPart `json:"parts"`
}

// InsertOneResult is the outcome of InsertOne.
type InsertOneResult struct {
	InsertedID string `json:"inserted_id"`
}

// InsertManyResult is the outcome of InsertMany.
type InsertManyResult struct {
	InsertedIDs []string `json:"inserted_ids"`
}

// UpdateResult is the outcome of UpdateOne and UpdateMany.
type UpdateResult struct {
	MatchedCount  int    `json:"matched_count"`
	ModifiedCount int    `json:"modified_count"`
	UpsertedID    string `json:"upserted_id,omitempty"`
}

// DeleteResult is the outcome of DeleteOne.
type DeleteResult struct {
	DeletedCount int `json:"deleted_count"`
}

// ChangeEvent is one entry of a collection change stream.
type ChangeEvent struct {
	Operation  string         `json:"operation"`
	Collection string         `json:"collection"`
	DocumentID string         `json:"document_id,omitempty"`
	Document   map[string]any `json:"document,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ChangeStreamer is implemented by drivers that can stream collection
// changes. The returned channel is closed when the context is canceled
// or the stream ends.
type ChangeStreamer interface {
	Changes(ctx context.Context, collection string) (<-chan ChangeEvent, error)
}
