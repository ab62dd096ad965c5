package memory

import (
	"github.com/google/btree"
)

const btreeDegree = 32

// indexEntry holds one indexed key value and the IDs of the documents
// carrying it.
type indexEntry struct {
	key string
	ids map[string]struct{}
}

func entryLess(a, b *indexEntry) bool {
	return a.key < b.key
}

// fieldIndex is a single-field ordered index over a collection,
// used as an equality fast path by FindMany and friends.
type fieldIndex struct {
	field string
	tree  *btree.BTreeG[*indexEntry]
}

func newFieldIndex(field string) *fieldIndex {
	return &fieldIndex{
		field: field,
		tree:  btree.NewG[*indexEntry](btreeDegree, entryLess),
	}
}

// add indexes one document. An array-valued field fans out over its
// elements, so the index stays a valid equality fast path for
// containment queries. Documents without the field are skipped, the
// same way a sparse index skips them.
func (idx *fieldIndex) add(id string, doc map[string]any) {
	for _, key := range idx.keysFor(doc) {
		entry, found := idx.tree.Get(&indexEntry{key: key})
		if !found {
			entry = &indexEntry{key: key, ids: make(map[string]struct{})}
			idx.tree.ReplaceOrInsert(entry)
		}
		entry.ids[id] = struct{}{}
	}
}

// remove drops one document from the index.
func (idx *fieldIndex) remove(id string, doc map[string]any) {
	for _, key := range idx.keysFor(doc) {
		entry, found := idx.tree.Get(&indexEntry{key: key})
		if !found {
			continue
		}
		delete(entry.ids, id)
		if len(entry.ids) == 0 {
			idx.tree.Delete(entry)
		}
	}
}

// lookup returns the IDs of documents whose indexed field equals the
// value. The second result reports whether the value is indexable at
// all; non-indexable values force a collection scan.
func (idx *fieldIndex) lookup(value any) ([]string, bool) {
	key, ok := canonicalKey(value)
	if !ok {
		return nil, false
	}

	entry, found := idx.tree.Get(&indexEntry{key: key})
	if !found {
		return nil, true
	}

	ids := make([]string, 0, len(entry.ids))
	for id := range entry.ids {
		ids = append(ids, id)
	}
	return ids, true
}

// keysFor returns every index key a document contributes: one key for
// a scalar field value, one per element for an array value.
func (idx *fieldIndex) keysFor(doc map[string]any) []string {
	value, exists := lookupPath(doc, idx.field)
	if !exists {
		return nil
	}
	if arr, ok := value.([]any); ok {
		keys := make([]string, 0, len(arr))
		for _, elem := range arr {
			if key, ok := canonicalKey(elem); ok {
				keys = append(keys, key)
			}
		}
		return keys
	}
	if key, ok := canonicalKey(value); ok {
		return []string{key}
	}
	return nil
}

// equalityTarget extracts a {field: value} or {field: {"$eq": value}}
// shape from a query, the only forms the index fast path serves.
func equalityTarget(query map[string]any) (string, any, bool) {
	if len(query) != 1 {
		return "", nil, false
	}
	for field, condition := range query {
		if len(field) > 0 && field[0] == '$' {
			return "", nil, false
		}
		if operators, ok := operatorMap(condition); ok {
			if len(operators) == 1 {
				if v, found := operators["$eq"]; found {
					return field, v, true
				}
			}
			return "", nil, false
		}
		return field, condition, true
	}
	return "", nil, false
}
