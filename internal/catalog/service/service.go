// Package service implements the commit pipeline: it fuses the catalog
// store's CAS primitive with the metadata manager's build/apply-updates
// logic, verifying requirements, writing the new metadata file, and
// rolling back on a lost CAS race.
package service

import (
	"context"
	"path"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/icebergrest/catalog/internal/catalog/catalogerr"
	"github.com/icebergrest/catalog/internal/catalog/metadata"
	"github.com/icebergrest/catalog/internal/catalog/model"
	"github.com/icebergrest/catalog/internal/catalog/storage"
	"github.com/icebergrest/catalog/internal/catalog/store"
	"github.com/icebergrest/catalog/internal/metrics"
)

// Service is the commit pipeline, constructor-injected with its
// collaborating store, accessor, and recorder.
type Service struct {
	store         store.Store
	accessor      *storage.Accessor
	recorder      metrics.Recorder
	warehouseRoot string
}

// New constructs a commit pipeline over the given catalog store and
// storage accessor.
func New(st store.Store, accessor *storage.Accessor, recorder metrics.Recorder, warehouseRoot string) *Service {
	return &Service{store: st, accessor: accessor, recorder: recorder, warehouseRoot: warehouseRoot}
}

// TableIdentifier names a table by its owning namespace and name.
type TableIdentifier struct {
	Namespace []string
	Name      string
}

// CreateTableRequest is the input to CreateTable.
type CreateTableRequest struct {
	Name          string
	Location      string
	Schema        model.Schema
	PartitionSpec *model.PartitionSpec
	SortOrder     *model.SortOrder
	Properties    map[string]string
	StageCreate   bool
}

// RegisterTableRequest is the input to RegisterTable.
type RegisterTableRequest struct {
	Name             string
	MetadataLocation string
}

// CommitTableRequest is the input to CommitTable.
type CommitTableRequest struct {
	Identifier   *TableIdentifier
	Requirements []model.TableRequirement
	Updates      []model.TableUpdate
}

// LoadTableResult is the common response shape for createTable,
// registerTable, commitTable, and loadTable.
type LoadTableResult struct {
	MetadataLocation string
	Metadata         *model.TableMetadata
	Config           map[string]string
}

func tableLocation(warehouseRoot string, ns []string, name string) string {
	parts := append(append([]string{}, ns...), name)
	return strings.TrimSuffix(warehouseRoot, "/") + "/" + path.Join(parts...)
}

// CreateTable builds and persists the initial metadata for a new table.
func (s *Service) CreateTable(ctx context.Context, ns []string, req CreateTableRequest) (*LoadTableResult, error) {
	if _, err := s.store.GetNamespace(ctx, ns); err != nil {
		return nil, err
	}

	base := req.Location
	if base == "" {
		base = tableLocation(s.warehouseRoot, ns, req.Name)
	}

	meta, metadataFile := metadata.BuildInitialTableMetadata(req.Schema, req.PartitionSpec, req.SortOrder, req.Properties, base)

	if req.StageCreate {
		return &LoadTableResult{
			MetadataLocation: metadataFile,
			Metadata:         meta,
			Config:           map[string]string{"created-by": "rest-catalog"},
		}, nil
	}

	if err := s.accessor.WriteJSON(ctx, metadataFile, meta); err != nil {
		return nil, err
	}

	if err := s.store.CreateTable(ctx, ns, req.Name, metadataFile, meta.Properties); err != nil {
		_ = s.accessor.Delete(ctx, metadataFile)
		return nil, err
	}

	return &LoadTableResult{
		MetadataLocation: metadataFile,
		Metadata:         meta,
		Config:           map[string]string{"created-by": "rest-catalog"},
	}, nil
}

// RegisterTable points a new catalog row at an already-written metadata
// file, inferring the table name from the file's parent directory when
// the caller doesn't supply one.
func (s *Service) RegisterTable(ctx context.Context, ns []string, req RegisterTableRequest) (*LoadTableResult, error) {
	name := req.Name
	if name == "" {
		dir := path.Dir(req.MetadataLocation)
		base := path.Base(dir)
		if base == "metadata" {
			base = path.Base(path.Dir(dir))
		}
		name = base
	}
	if name == "" {
		return nil, catalogerr.NewValidation("could not infer table name from metadata location %q", req.MetadataLocation)
	}

	exists, err := s.accessor.Exists(ctx, req.MetadataLocation)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, catalogerr.NewNotFound("metadata file not found: %s", req.MetadataLocation)
	}

	var meta model.TableMetadata
	if err := s.accessor.ReadJSON(ctx, req.MetadataLocation, &meta); err != nil {
		return nil, err
	}

	if err := s.store.CreateTable(ctx, ns, name, req.MetadataLocation, meta.Properties); err != nil {
		return nil, err
	}

	return &LoadTableResult{MetadataLocation: req.MetadataLocation, Metadata: &meta}, nil
}

// CommitTable is the heart of the system: it either creates a table
// whose requirements include AssertCreate, or advances an existing
// table's metadata pointer via compare-and-swap.
func (s *Service) CommitTable(ctx context.Context, ns []string, name string, req CommitTableRequest) (*LoadTableResult, error) {
	if req.Identifier != nil {
		if req.Identifier.Name != name || !equalLevels(req.Identifier.Namespace, ns) {
			return nil, catalogerr.NewBadRequest("request identifier %v.%s does not match path identifier %v.%s", req.Identifier.Namespace, req.Identifier.Name, ns, name)
		}
	}

	assertCreate := false
	for _, r := range req.Requirements {
		if r.Type == model.RequirementAssertCreate {
			assertCreate = true
			break
		}
	}

	var result *LoadTableResult
	var err error
	if assertCreate {
		result, err = s.commitCreate(ctx, ns, name, req.Updates)
	} else {
		result, err = s.commitUpdate(ctx, ns, name, req.Requirements, req.Updates)
	}

	outcome := "success"
	if err != nil {
		if ce, ok := catalogerr.As(err); ok && ce.Code == catalogerr.CommitFailed {
			outcome = "cas_conflict"
		} else {
			outcome = "rejected"
		}
	}
	s.recorder.RecordCommitAttempt(ctx, outcome)

	return result, err
}

func (s *Service) commitCreate(ctx context.Context, ns []string, name string, updates []model.TableUpdate) (*LoadTableResult, error) {
	exists, err := s.store.TableExists(ctx, ns, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, catalogerr.NewTableAlreadyExists(ns, name)
	}

	var schema *model.Schema
	var location string
	properties := map[string]string{}
	for _, u := range updates {
		switch u.Action {
		case model.UpdateAddSchema:
			schema = u.Schema
		case model.UpdateSetLocation:
			location = u.Location
		case model.UpdateSetProperties:
			for k, v := range u.Updates {
				properties[k] = v
			}
		}
	}
	if schema == nil {
		return nil, catalogerr.NewBadRequest("create commit requires an add-schema update")
	}
	if location == "" {
		location = tableLocation(s.warehouseRoot, ns, name)
	}

	initial, metadataFile := metadata.BuildInitialTableMetadata(*schema, nil, nil, properties, location)

	// The add-schema update that seeded the initial metadata is not
	// applied again: its schema id is already present.
	rest := make([]model.TableUpdate, 0, len(updates))
	for _, u := range updates {
		if u.Action == model.UpdateAddSchema && u.Schema == schema {
			continue
		}
		rest = append(rest, u)
	}

	newMeta, err := metadata.ApplyUpdates(initial, rest, location)
	if err != nil {
		return nil, err
	}

	if err := s.accessor.WriteJSON(ctx, metadataFile, newMeta); err != nil {
		return nil, err
	}

	if err := s.store.CreateTable(ctx, ns, name, metadataFile, newMeta.Properties); err != nil {
		_ = s.accessor.Delete(ctx, metadataFile)
		return nil, err
	}

	return &LoadTableResult{MetadataLocation: metadataFile, Metadata: newMeta}, nil
}

func (s *Service) commitUpdate(ctx context.Context, ns []string, name string, requirements []model.TableRequirement, updates []model.TableUpdate) (*LoadTableResult, error) {
	row, err := s.store.GetTable(ctx, ns, name)
	if err != nil {
		return nil, err
	}
	oldLocation := row.MetadataLocation

	var current model.TableMetadata
	if err := s.accessor.ReadJSON(ctx, oldLocation, &current); err != nil {
		return nil, err
	}

	if err := checkRequirements(&current, requirements); err != nil {
		return nil, err
	}

	overrideLocation := ""
	for _, u := range updates {
		if u.Action == model.UpdateSetLocation {
			overrideLocation = u.Location
			break
		}
	}

	newMeta, err := metadata.ApplyUpdates(&current, updates, overrideLocation)
	if err != nil {
		return nil, err
	}

	newFile := metadata.GenerateNewMetadataLocation(newMeta.Location, oldLocation)
	newMeta.MetadataLog = append(newMeta.MetadataLog, model.MetadataLogEntry{
		TimestampMs:  newMeta.LastUpdatedMs,
		MetadataFile: newFile,
	})

	if err := s.accessor.WriteJSON(ctx, newFile, newMeta); err != nil {
		return nil, err
	}

	if err := s.store.CASUpdateMetadataLocation(ctx, ns, name, oldLocation, newFile); err != nil {
		if delErr := s.accessor.Delete(ctx, newFile); delErr != nil {
			log.Warn().Err(delErr).Str("file", newFile).Msg("failed to clean up metadata file after lost CAS")
		}
		if ce, ok := catalogerr.As(err); ok {
			return nil, ce
		}
		return nil, catalogerr.NewCommitFailed("commit failed for %v.%s: %v", ns, name, err)
	}

	return &LoadTableResult{MetadataLocation: newFile, Metadata: newMeta}, nil
}

// checkRequirements verifies every precondition against current
// metadata, in the order the pipeline specifies.
func checkRequirements(current *model.TableMetadata, requirements []model.TableRequirement) error {
	for _, r := range requirements {
		switch r.Type {
		case model.RequirementAssertCreate:
			// handled by the caller's dispatch on assertCreate
		case model.RequirementAssertTableUUID:
			if current.TableUUID != r.UUID {
				return catalogerr.NewCommitFailed("table UUID mismatch: expected %s, found %s", r.UUID, current.TableUUID)
			}
		case model.RequirementAssertDefaultSpecID:
			if r.DefaultSpecID != nil && current.DefaultSpecID != *r.DefaultSpecID {
				return catalogerr.NewCommitFailed("default spec id mismatch: expected %d, found %d", *r.DefaultSpecID, current.DefaultSpecID)
			}
		case model.RequirementAssertDefaultSortOrderID:
			if r.DefaultSortOrderID != nil && current.DefaultSortOrderID != *r.DefaultSortOrderID {
				return catalogerr.NewCommitFailed("default sort order id mismatch: expected %d, found %d", *r.DefaultSortOrderID, current.DefaultSortOrderID)
			}
		case model.RequirementAssertCurrentSchemaID:
			if r.CurrentSchemaID != nil && current.CurrentSchemaID != *r.CurrentSchemaID {
				return catalogerr.NewCommitFailed("current schema id mismatch: expected %d, found %d", *r.CurrentSchemaID, current.CurrentSchemaID)
			}
		case model.RequirementAssertLastAssignedFieldID:
			if r.LastAssignedFieldID != nil && current.LastColumnID != *r.LastAssignedFieldID {
				return catalogerr.NewCommitFailed("last assigned field id mismatch: expected %d, found %d", *r.LastAssignedFieldID, current.LastColumnID)
			}
		case model.RequirementAssertRefSnapshotID:
			ref, ok := current.Refs[r.Ref]
			if r.SnapshotID == nil {
				if ok {
					return catalogerr.NewCommitFailed("ref %q must be absent, found pointing at snapshot %d", r.Ref, ref.SnapshotID)
				}
			} else {
				if !ok {
					return catalogerr.NewCommitFailed("ref %q must point at snapshot %d, found absent", r.Ref, *r.SnapshotID)
				}
				if ref.SnapshotID != *r.SnapshotID {
					return catalogerr.NewCommitFailed("ref %q mismatch: expected snapshot %d, found %d", r.Ref, *r.SnapshotID, ref.SnapshotID)
				}
			}
		default:
			return catalogerr.NewBadRequest("unsupported table requirement: %q", r.Type)
		}
	}
	return nil
}

// DropTable removes a table's catalog row. When purge is true it best-
// effort deletes every distinct metadata file the table ever pointed
// at; purge failures are logged but never fail the drop.
func (s *Service) DropTable(ctx context.Context, ns []string, name string, purge bool) error {
	row, err := s.store.GetTable(ctx, ns, name)
	if err != nil {
		return err
	}

	if purge {
		var current model.TableMetadata
		if readErr := s.accessor.ReadJSON(ctx, row.MetadataLocation, &current); readErr != nil {
			log.Warn().Err(readErr).Str("table", name).Msg("could not read metadata for purge, dropping row only")
		} else {
			files := map[string]bool{row.MetadataLocation: true}
			for _, entry := range current.MetadataLog {
				files[entry.MetadataFile] = true
			}
			for file := range files {
				if delErr := s.accessor.Delete(ctx, file); delErr != nil {
					log.Warn().Err(delErr).Str("file", file).Msg("failed to purge metadata file")
				}
			}
		}
	}

	return s.store.DropTable(ctx, ns, name)
}

// LoadTable returns the current metadata, or a read-only view pinned to
// a resolved snapshot ref when snapshotRef is non-empty.
func (s *Service) LoadTable(ctx context.Context, ns []string, name, snapshotRef string) (*LoadTableResult, error) {
	row, err := s.store.GetTable(ctx, ns, name)
	if err != nil {
		return nil, err
	}

	var meta model.TableMetadata
	if err := s.accessor.ReadJSON(ctx, row.MetadataLocation, &meta); err != nil {
		return nil, err
	}

	if snapshotRef == "" {
		return &LoadTableResult{MetadataLocation: row.MetadataLocation, Metadata: &meta}, nil
	}

	snapshotID, err := resolveSnapshotRef(&meta, ns, name, snapshotRef)
	if err != nil {
		return nil, err
	}
	if !meta.HasSnapshot(snapshotID) {
		return nil, catalogerr.NewCommitFailed("ref %q resolved to snapshot %d, which is not present in snapshots", snapshotRef, snapshotID)
	}

	view, err := meta.DeepCopy()
	if err != nil {
		return nil, catalogerr.Wrap(err)
	}
	view.CurrentSnapshotID = &snapshotID
	for _, snap := range view.Snapshots {
		if snap.SnapshotID == snapshotID && snap.SchemaID != nil {
			view.CurrentSchemaID = *snap.SchemaID
			break
		}
	}

	return &LoadTableResult{MetadataLocation: row.MetadataLocation, Metadata: view}, nil
}

// resolveSnapshotRef interprets ref as a named ref first, then as a
// decimal snapshot id, failing NoSuchTable with a ref qualifier if
// neither resolves.
func resolveSnapshotRef(meta *model.TableMetadata, ns []string, name, ref string) (int64, error) {
	if r, ok := meta.Refs[ref]; ok {
		return r.SnapshotID, nil
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return id, nil
	}
	return 0, catalogerr.NewNoSuchTableRef(ns, name, ref)
}

// GetNamespace returns a namespace's properties.
func (s *Service) GetNamespace(ctx context.Context, levels []string) (map[string]string, error) {
	return s.store.GetNamespace(ctx, levels)
}

// NamespaceExists reports whether a namespace is present.
func (s *Service) NamespaceExists(ctx context.Context, levels []string) (bool, error) {
	return s.store.NamespaceExists(ctx, levels)
}

// ListNamespaces lists namespaces, optionally filtered to direct
// children of parent.
func (s *Service) ListNamespaces(ctx context.Context, parent []string) ([][]string, error) {
	return s.store.ListNamespaces(ctx, parent)
}

// CreateNamespace creates a namespace with the given properties.
func (s *Service) CreateNamespace(ctx context.Context, levels []string, properties map[string]string) error {
	return s.store.CreateNamespace(ctx, levels, properties)
}

// UpdateNamespaceProperties merges updates and removes removals from a
// namespace's properties.
func (s *Service) UpdateNamespaceProperties(ctx context.Context, levels []string, updates map[string]string, removals []string) (store.PropertyUpdateResult, error) {
	return s.store.UpdateNamespaceProperties(ctx, levels, updates, removals)
}

// DropNamespace removes an empty namespace.
func (s *Service) DropNamespace(ctx context.Context, levels []string) error {
	return s.store.DropNamespace(ctx, levels)
}

// ListTables lists the table names owned by a namespace.
func (s *Service) ListTables(ctx context.Context, ns []string) ([]string, error) {
	return s.store.ListTables(ctx, ns)
}

// TableExists reports whether a table is present.
func (s *Service) TableExists(ctx context.Context, ns []string, name string) (bool, error) {
	return s.store.TableExists(ctx, ns, name)
}

// RenameTable atomically moves a table to a new namespace/name.
func (s *Service) RenameTable(ctx context.Context, src, dst TableIdentifier) error {
	return s.store.RenameTable(ctx, store.TableIdentifier{Namespace: src.Namespace, Name: src.Name}, store.TableIdentifier{Namespace: dst.Namespace, Name: dst.Name})
}

func equalLevels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
