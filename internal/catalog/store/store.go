// Package store defines the catalog's persisted namespace/table mapping
// and its compare-and-swap primitive on the metadata pointer, plus a
// Postgres implementation.
package store

import "context"

// PropertyUpdateResult reports the outcome of a namespace properties
// merge-and-remove, partitioned the way the namespace properties
// endpoint reports it.
type PropertyUpdateResult struct {
	Updated []string
	Removed []string
	Missing []string
}

// TableRow is the catalog's row for one table: its current metadata
// pointer plus catalog-side properties.
type TableRow struct {
	Namespace        []string
	Name             string
	MetadataLocation string
	Properties       map[string]string
}

// TableIdentifier names a table by its owning namespace and name.
type TableIdentifier struct {
	Namespace []string
	Name      string
}

// Store is the catalog's persistence boundary: namespaces, tables, and
// the CAS primitive on a table's metadata pointer. Every method runs in
// its own catalog transaction.
type Store interface {
	GetNamespace(ctx context.Context, levels []string) (map[string]string, error)
	NamespaceExists(ctx context.Context, levels []string) (bool, error)
	ListNamespaces(ctx context.Context, parent []string) ([][]string, error)
	CreateNamespace(ctx context.Context, levels []string, properties map[string]string) error
	UpdateNamespaceProperties(ctx context.Context, levels []string, updates map[string]string, removals []string) (PropertyUpdateResult, error)
	DropNamespace(ctx context.Context, levels []string) error

	GetTable(ctx context.Context, ns []string, name string) (*TableRow, error)
	ListTables(ctx context.Context, ns []string) ([]string, error)
	TableExists(ctx context.Context, ns []string, name string) (bool, error)
	CreateTable(ctx context.Context, ns []string, name, metadataLocation string, properties map[string]string) error
	RenameTable(ctx context.Context, src, dst TableIdentifier) error
	CASUpdateMetadataLocation(ctx context.Context, ns []string, name, expectedLocation, newLocation string) error
	DropTable(ctx context.Context, ns []string, name string) error
}
