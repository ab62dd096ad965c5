package schema

import (
	"reflect"
	"strings"
	"sync"
)

// CollectionNamer lets a schema type choose its own collection name.
type CollectionNamer interface {
	CollectionName() string
}

var (
	namesMu         sync.RWMutex
	collectionNames = make(map[reflect.Type]string)
)

// SetCollectionName registers a collection name for a schema type in
// the process-wide registry. It takes precedence over the derived name
// but not over an explicit per-worker override.
func SetCollectionName(model any, name string) {
	t := Resolve(reflect.TypeOf(model))
	namesMu.Lock()
	collectionNames[t] = name
	namesMu.Unlock()
}

// CollectionName resolves the collection name for a schema type.
// Precedence: explicit override, CollectionNamer implementation,
// registry entry, then the lower-cased type name with any trailing
// "s" run trimmed and a single "s" appended.
func CollectionName(t reflect.Type, override string) string {
	if override != "" {
		return override
	}

	t = Resolve(t)

	if t.Kind() == reflect.Struct {
		v := reflect.New(t)
		if namer, ok := v.Interface().(CollectionNamer); ok {
			return namer.CollectionName()
		}
		if namer, ok := v.Elem().Interface().(CollectionNamer); ok {
			return namer.CollectionName()
		}
	}

	namesMu.RLock()
	name, ok := collectionNames[t]
	namesMu.RUnlock()
	if ok {
		return name
	}

	return strings.TrimRight(strings.ToLower(t.Name()), "s") + "s"
}
