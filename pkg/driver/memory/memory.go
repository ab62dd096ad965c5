// Package memory implements the driver interface against an in-process
// document store. It supports the full filter and update vocabulary of
// the expression DSL, ordered sorting with skip/limit, and single-field
// btree indexes used as an equality fast path. It is the reference
// driver for tests and small tools.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/mnohosten/laura-odm/pkg/driver"
)

var jsonFast = jsoniter.ConfigCompatibleWithStandardLibrary

// Driver is an in-memory document store implementing driver.Driver.
// All operations are safe for concurrent use.
type Driver struct {
	mu          sync.RWMutex
	collections map[string]*collection
	logger      *slog.Logger
	connected   bool

	watchMu  sync.Mutex
	watchers map[string][]chan driver.ChangeEvent
}

type collection struct {
	docs    map[string]map[string]any
	order   []string
	indexes map[string]*fieldIndex
	specs   []driver.IndexSpec
	keys    map[string]struct{}
}

// Option configures the driver.
type Option func(*Driver)

// WithLogger attaches a slog logger for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// New creates an empty in-memory driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		collections: make(map[string]*collection),
		watchers:    make(map[string][]chan driver.ChangeEvent),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Connect marks the driver connected. It never fails.
func (d *Driver) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return driver.WrapConnection(err)
	}
	d.mu.Lock()
	d.connected = true
	d.mu.Unlock()
	return nil
}

// Close marks the driver disconnected. Stored documents survive a
// reconnect, mirroring a real server.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()

	d.watchMu.Lock()
	for _, channels := range d.watchers {
		for _, ch := range channels {
			close(ch)
		}
	}
	d.watchers = make(map[string][]chan driver.ChangeEvent)
	d.watchMu.Unlock()
	return nil
}

func (d *Driver) InsertOne(ctx context.Context, coll string, document map[string]any) (*driver.InsertOneResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	c := d.collection(coll)
	doc := clone(document)
	id, ok := doc["_id"].(string)
	if !ok || id == "" {
		id = uuid.NewString()
		doc["_id"] = id
	}
	c.store(id, doc)
	d.mu.Unlock()

	d.debug("insert_one", coll, id)
	d.notify(coll, "insert", id, doc)
	return &driver.InsertOneResult{InsertedID: id}, nil
}

func (d *Driver) InsertMany(ctx context.Context, coll string, documents []map[string]any) (*driver.InsertManyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(documents))
	d.mu.Lock()
	c := d.collection(coll)
	for _, document := range documents {
		doc := clone(document)
		id, ok := doc["_id"].(string)
		if !ok || id == "" {
			id = uuid.NewString()
			doc["_id"] = id
		}
		c.store(id, doc)
		ids = append(ids, id)
	}
	d.mu.Unlock()

	d.debug("insert_many", coll, fmt.Sprintf("%d documents", len(ids)))
	return &driver.InsertManyResult{InsertedIDs: ids}, nil
}

func (d *Driver) FindOne(ctx context.Context, coll string, query map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.collections[coll]
	if !ok {
		return nil, nil
	}

	for _, id := range c.candidates(query) {
		doc, ok := c.docs[id]
		if !ok {
			continue
		}
		matched, err := matchDocument(doc, query)
		if err != nil {
			return nil, err
		}
		if matched {
			return clone(doc), nil
		}
	}
	return nil, nil
}

func (d *Driver) FindMany(ctx context.Context, coll string, params driver.FindParams) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	c, ok := d.collections[coll]
	if !ok {
		d.mu.RUnlock()
		return []map[string]any{}, nil
	}

	var matched []map[string]any
	for _, id := range c.candidates(params.Query) {
		doc, ok := c.docs[id]
		if !ok {
			continue
		}
		hit, err := matchDocument(doc, params.Query)
		if err != nil {
			d.mu.RUnlock()
			return nil, err
		}
		if hit {
			matched = append(matched, doc)
		}
	}
	d.mu.RUnlock()

	sortDocuments(matched, params.Sort)

	if params.Skip != nil {
		skip := *params.Skip
		if skip >= len(matched) {
			matched = nil
		} else if skip > 0 {
			matched = matched[skip:]
		}
	}
	if params.Limit != nil && *params.Limit >= 0 && *params.Limit < len(matched) {
		matched = matched[:*params.Limit]
	}

	out := make([]map[string]any, len(matched))
	for i, doc := range matched {
		out[i] = clone(doc)
	}
	return out, nil
}

func (d *Driver) UpdateOne(ctx context.Context, coll string, query, update map[string]any, upsert bool) (*driver.UpdateResult, error) {
	return d.update(ctx, coll, query, update, upsert, false)
}

func (d *Driver) UpdateMany(ctx context.Context, coll string, query, update map[string]any) (*driver.UpdateResult, error) {
	return d.update(ctx, coll, query, update, false, true)
}

func (d *Driver) update(ctx context.Context, coll string, query, update map[string]any, upsert, multi bool) (*driver.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.collection(coll)
	result := &driver.UpdateResult{}

	for _, id := range c.order {
		doc, ok := c.docs[id]
		if !ok {
			continue
		}
		matched, err := matchDocument(doc, query)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}

		result.MatchedCount++
		updated := clone(doc)
		if err := applyUpdate(updated, update); err != nil {
			return nil, err
		}
		c.replace(id, updated)
		result.ModifiedCount++
		d.notify(coll, "update", id, updated)

		if !multi {
			return result, nil
		}
	}

	if result.MatchedCount == 0 && upsert {
		doc := make(map[string]any)
		for field, condition := range query {
			if len(field) > 0 && field[0] != '$' {
				if _, isOp := operatorMap(condition); !isOp {
					setPath(doc, field, condition)
				}
			}
		}
		if err := applyUpdate(doc, update); err != nil {
			return nil, err
		}
		id, ok := doc["_id"].(string)
		if !ok || id == "" {
			id = uuid.NewString()
			doc["_id"] = id
		}
		c.store(id, doc)
		result.UpsertedID = id
		d.notify(coll, "insert", id, doc)
	}

	return result, nil
}

func (d *Driver) DeleteOne(ctx context.Context, coll string, query map[string]any) (*driver.DeleteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.collections[coll]
	if !ok {
		return &driver.DeleteResult{}, nil
	}

	for _, id := range c.order {
		doc, ok := c.docs[id]
		if !ok {
			continue
		}
		matched, err := matchDocument(doc, query)
		if err != nil {
			return nil, err
		}
		if matched {
			c.delete(id)
			d.notify(coll, "delete", id, nil)
			return &driver.DeleteResult{DeletedCount: 1}, nil
		}
	}
	return &driver.DeleteResult{}, nil
}

func (d *Driver) Count(ctx context.Context, coll string, query map[string]any) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.collections[coll]
	if !ok {
		return 0, nil
	}

	count := 0
	for _, id := range c.candidates(query) {
		doc, ok := c.docs[id]
		if !ok {
			continue
		}
		matched, err := matchDocument(doc, query)
		if err != nil {
			return 0, err
		}
		if matched {
			count++
		}
	}
	return count, nil
}

func (d *Driver) Exists(ctx context.Context, coll string, query map[string]any) (bool, error) {
	doc, err := d.FindOne(ctx, coll, query)
	if err != nil {
		return false, err
	}
	return doc != nil, nil
}

// CreateIndex records an index declaration and builds the btree
// structures for its single-field sort-order parts. Re-creating an
// identical index is a no-op.
func (d *Driver) CreateIndex(ctx context.Context, coll string, spec driver.IndexSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := specKey(spec)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.collection(coll)
	if _, exists := c.keys[key]; exists {
		return nil
	}
	c.keys[key] = struct{}{}
	c.specs = append(c.specs, spec)

	for _, part := range spec.Parts {
		for field, kind := range part.Keys {
			// Typed indexes (text, hashed, geo) are bookkept but get
			// no ordered structure; only sort-order keys do.
			if _, isOrder := toFloat64(kind); !isOrder {
				continue
			}
			if _, exists := c.indexes[field]; exists {
				continue
			}
			idx := newFieldIndex(field)
			for id, doc := range c.docs {
				idx.add(id, doc)
			}
			c.indexes[field] = idx
		}
	}

	d.debug("create_index", coll, key)
	return nil
}

// Indexes returns the recorded index declarations for a collection,
// in creation order. Intended for tests and tooling.
func (d *Driver) Indexes(coll string) []driver.IndexSpec {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.collections[coll]
	if !ok {
		return nil
	}
	out := make([]driver.IndexSpec, len(c.specs))
	copy(out, c.specs)
	return out
}

// Changes streams change events for a collection until the context is
// canceled.
func (d *Driver) Changes(ctx context.Context, coll string) (<-chan driver.ChangeEvent, error) {
	ch := make(chan driver.ChangeEvent, 16)

	d.watchMu.Lock()
	d.watchers[coll] = append(d.watchers[coll], ch)
	d.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		d.watchMu.Lock()
		channels := d.watchers[coll]
		for i, candidate := range channels {
			if candidate == ch {
				d.watchers[coll] = append(channels[:i], channels[i+1:]...)
				close(ch)
				break
			}
		}
		d.watchMu.Unlock()
	}()

	return ch, nil
}

func (d *Driver) notify(coll, operation, id string, doc map[string]any) {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()

	for _, ch := range d.watchers[coll] {
		event := driver.ChangeEvent{
			Operation:  operation,
			Collection: coll,
			DocumentID: id,
		}
		if doc != nil {
			event.Document = clone(doc)
		}
		select {
		case ch <- event:
		default:
			// Slow consumers drop events rather than blocking writes.
		}
	}
}

// collection returns the named collection, creating it on first use.
// Callers must hold the write lock.
func (d *Driver) collection(name string) *collection {
	c, ok := d.collections[name]
	if !ok {
		c = &collection{
			docs:    make(map[string]map[string]any),
			indexes: make(map[string]*fieldIndex),
			keys:    make(map[string]struct{}),
		}
		d.collections[name] = c
	}
	return c
}

func (d *Driver) debug(op, coll, detail string) {
	if d.logger != nil {
		d.logger.Debug("memory driver", "op", op, "collection", coll, "detail", detail)
	}
}

func (c *collection) store(id string, doc map[string]any) {
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = doc
	for _, idx := range c.indexes {
		idx.add(id, doc)
	}
}

func (c *collection) replace(id string, doc map[string]any) {
	if old, exists := c.docs[id]; exists {
		for _, idx := range c.indexes {
			idx.remove(id, old)
		}
	}
	c.docs[id] = doc
	for _, idx := range c.indexes {
		idx.add(id, doc)
	}
}

func (c *collection) delete(id string) {
	doc, exists := c.docs[id]
	if !exists {
		return
	}
	for _, idx := range c.indexes {
		idx.remove(id, doc)
	}
	delete(c.docs, id)
	for i, candidate := range c.order {
		if candidate == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// candidates returns the document IDs worth matching for a query: the
// index lookup result for a single-field equality query, otherwise the
// whole collection in insertion order.
func (c *collection) candidates(query map[string]any) []string {
	if field, value, ok := equalityTarget(query); ok {
		if idx, exists := c.indexes[field]; exists {
			if ids, usable := idx.lookup(value); usable {
				return ids
			}
		}
	}
	return c.order
}

func sortDocuments(docs []map[string]any, fields []driver.SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, sf := range fields {
			a, _ := lookupPath(docs[i], sf.Field)
			b, _ := lookupPath(docs[j], sf.Field)
			cmp := compareValues(a, b)
			if cmp == 0 {
				continue
			}
			if sf.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
}

// clone deep-copies a document through its JSON wire form, so stored
// documents never alias caller memory and all values use plain JSON
// types.
func clone(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	data, err := jsonFast.Marshal(doc)
	if err != nil {
		// Documents reach the driver already flattened to plain maps;
		// a marshal failure means a non-serializable value slipped in.
		panic(fmt.Sprintf("memory: document not serializable: %v", err))
	}
	var out map[string]any
	if err := jsonFast.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("memory: document not round-trippable: %v", err))
	}
	return out
}

func specKey(spec driver.IndexSpec) (string, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("failed to serialize index spec: %w", err)
	}
	return string(data), nil
}
