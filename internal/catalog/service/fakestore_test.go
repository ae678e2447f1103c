package service

import (
	"context"
	"sync"

	"github.com/icebergrest/catalog/internal/catalog/catalogerr"
	"github.com/icebergrest/catalog/internal/catalog/store"
)

// fakeStore is an in-memory, mutex-guarded store.Store standing in for
// Postgres in tests, simulating the same row-level CAS semantics without
// a live database.
type fakeStore struct {
	mu         sync.Mutex
	namespaces map[string]map[string]string
	tables     map[string]*store.TableRow
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		namespaces: map[string]map[string]string{},
		tables:     map[string]*store.TableRow{},
	}
}

func nsKey(levels []string) string {
	key := ""
	for _, l := range levels {
		key += l + "\x00"
	}
	return key
}

func tableKey(ns []string, name string) string {
	return nsKey(ns) + name
}

func (f *fakeStore) GetNamespace(ctx context.Context, levels []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	props, ok := f.namespaces[nsKey(levels)]
	if !ok {
		return nil, catalogerr.NewNoSuchNamespace(levels)
	}
	return props, nil
}

func (f *fakeStore) NamespaceExists(ctx context.Context, levels []string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.namespaces[nsKey(levels)]
	return ok, nil
}

func (f *fakeStore) ListNamespaces(ctx context.Context, parent []string) ([][]string, error) {
	return nil, nil
}

func (f *fakeStore) CreateNamespace(ctx context.Context, levels []string, properties map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := nsKey(levels)
	if _, ok := f.namespaces[key]; ok {
		return catalogerr.NewNamespaceAlreadyExists(levels)
	}
	if properties == nil {
		properties = map[string]string{}
	}
	f.namespaces[key] = properties
	return nil
}

func (f *fakeStore) UpdateNamespaceProperties(ctx context.Context, levels []string, updates map[string]string, removals []string) (store.PropertyUpdateResult, error) {
	return store.PropertyUpdateResult{}, nil
}

func (f *fakeStore) DropNamespace(ctx context.Context, levels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.namespaces, nsKey(levels))
	return nil
}

func (f *fakeStore) GetTable(ctx context.Context, ns []string, name string) (*store.TableRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.tables[tableKey(ns, name)]
	if !ok {
		return nil, catalogerr.NewNoSuchTable(ns, name)
	}
	copied := *row
	return &copied, nil
}

func (f *fakeStore) ListTables(ctx context.Context, ns []string) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) TableExists(ctx context.Context, ns []string, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tables[tableKey(ns, name)]
	return ok, nil
}

func (f *fakeStore) CreateTable(ctx context.Context, ns []string, name, metadataLocation string, properties map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := tableKey(ns, name)
	if _, ok := f.tables[key]; ok {
		return catalogerr.NewTableAlreadyExists(ns, name)
	}
	f.tables[key] = &store.TableRow{Namespace: ns, Name: name, MetadataLocation: metadataLocation, Properties: properties}
	return nil
}

func (f *fakeStore) RenameTable(ctx context.Context, src, dst store.TableIdentifier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	srcKey := tableKey(src.Namespace, src.Name)
	row, ok := f.tables[srcKey]
	if !ok {
		return catalogerr.NewNoSuchTable(src.Namespace, src.Name)
	}
	if _, ok := f.namespaces[nsKey(dst.Namespace)]; !ok {
		return catalogerr.NewNoSuchNamespace(dst.Namespace)
	}
	dstKey := tableKey(dst.Namespace, dst.Name)
	if _, ok := f.tables[dstKey]; ok {
		return catalogerr.NewTableAlreadyExists(dst.Namespace, dst.Name)
	}
	delete(f.tables, srcKey)
	f.tables[dstKey] = &store.TableRow{Namespace: dst.Namespace, Name: dst.Name, MetadataLocation: row.MetadataLocation, Properties: row.Properties}
	return nil
}

func (f *fakeStore) CASUpdateMetadataLocation(ctx context.Context, ns []string, name, expectedLocation, newLocation string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := tableKey(ns, name)
	row, ok := f.tables[key]
	if !ok {
		return catalogerr.NewNoSuchTable(ns, name)
	}
	if row.MetadataLocation != expectedLocation {
		return catalogerr.NewCommitFailed("concurrent commit: expected metadata_location %s for %v.%s no longer current (attempted new location %s)", expectedLocation, ns, name, newLocation)
	}
	row.MetadataLocation = newLocation
	return nil
}

func (f *fakeStore) DropTable(ctx context.Context, ns []string, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := tableKey(ns, name)
	if _, ok := f.tables[key]; !ok {
		return catalogerr.NewNoSuchTable(ns, name)
	}
	delete(f.tables, key)
	return nil
}
