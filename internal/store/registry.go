package store

import (
	"sort"
	"sync"

	"github.com/icydb/icydb/internal/schema"

	icyerrors "github.com/icydb/icydb/errors"
)

// StoreRegistry is the path-indexed directory of every DataStore and
// IndexStore in the engine, keyed by entity name and (entity, index) pair
// respectively (spec.md §4.4).
type StoreRegistry struct {
	mu          sync.RWMutex
	dataStores  map[string]*DataStore
	indexStores map[string]*IndexStore // key: entity + "/" + index name
}

// NewStoreRegistry constructs an empty registry.
func NewStoreRegistry() *StoreRegistry {
	return &StoreRegistry{
		dataStores:  make(map[string]*DataStore),
		indexStores: make(map[string]*IndexStore),
	}
}

// RegisterEntity creates (or returns the existing) DataStore and its
// IndexStores for model, registering one IndexStore per declared index.
func (r *StoreRegistry) RegisterEntity(model *schema.EntityModel) (*DataStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ds, ok := r.dataStores[model.Name]; ok {
		return ds, nil
	}

	ds := NewDataStore(model)
	r.dataStores[model.Name] = ds

	for i, idx := range model.Indexes {
		path := indexPath(model.Name, idx.Name)
		if _, ok := r.indexStores[path]; ok {
			continue
		}
		r.indexStores[path] = NewIndexStore(uint32(i), idx.Unique)
	}
	return ds, nil
}

func indexPath(entity, indexName string) string {
	return entity + "/" + indexName
}

// TryGetDataStore looks up a registered DataStore by entity name.
func (r *StoreRegistry) TryGetDataStore(entity string) (*DataStore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.dataStores[entity]
	if !ok {
		return nil, icyerrors.Newf(icyerrors.ClassNotFound, icyerrors.OriginStore,
			"no data store registered for entity %q", entity)
	}
	return ds, nil
}

// TryGetIndexStore looks up a registered IndexStore by entity and index name.
func (r *StoreRegistry) TryGetIndexStore(entity, indexName string) (*IndexStore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	is, ok := r.indexStores[indexPath(entity, indexName)]
	if !ok {
		return nil, icyerrors.Newf(icyerrors.ClassNotFound, icyerrors.OriginStore,
			"no index store registered for entity %q index %q", entity, indexName)
	}
	return is, nil
}

// ReplaceIndexStore atomically swaps in a freshly rebuilt IndexStore for an
// already-registered (entity, index) path, used by recovery's rebuild phase
// once a full rebuild has succeeded (spec.md §4.6: fail-closed, never a
// partial swap).
func (r *StoreRegistry) ReplaceIndexStore(entity, indexName string, is *IndexStore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	path := indexPath(entity, indexName)
	if _, ok := r.indexStores[path]; !ok {
		return icyerrors.Newf(icyerrors.ClassNotFound, icyerrors.OriginStore,
			"no index store registered for entity %q index %q", entity, indexName)
	}
	r.indexStores[path] = is
	return nil
}

// Entities returns every registered entity name, sorted for determinism.
func (r *StoreRegistry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.dataStores))
	for name := range r.dataStores {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IndexesOf returns the registered index names for entity, sorted.
func (r *StoreRegistry) IndexesOf(entity string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prefix := entity + "/"
	var out []string
	for path := range r.indexStores {
		if len(path) > len(prefix) && path[:len(prefix)] == prefix {
			out = append(out, path[len(prefix):])
		}
	}
	sort.Strings(out)
	return out
}
