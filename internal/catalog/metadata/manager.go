// Package metadata builds and evolves TableMetadata value objects:
// generating versioned file locations, constructing the initial metadata
// for a new table, and applying an ordered list of typed updates over a
// deep copy of the current metadata.
package metadata

import (
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/icebergrest/catalog/internal/catalog/catalogerr"
	"github.com/icebergrest/catalog/internal/catalog/model"
)

// NowFunc returns the current wall-clock time in milliseconds. It is a
// package variable so tests can inject a deterministic clock.
var NowFunc = func() int64 { return time.Now().UnixMilli() }

// GenerateNewMetadataLocation returns the next versioned metadata file
// path under {tableLocation}/metadata/. The version is parsed from the
// leading numeric prefix of oldMetadataLocation's basename and
// incremented; on any parse failure or absence it starts at 0. A fresh
// UUID is used every call so concurrent commits racing on the same
// oldMetadataLocation never collide on the new file name.
func GenerateNewMetadataLocation(tableLocation, oldMetadataLocation string) string {
	version := 0
	if oldMetadataLocation != "" {
		filename := path.Base(oldMetadataLocation)
		prefix, _, found := strings.Cut(filename, "-")
		if found {
			if v, err := strconv.Atoi(prefix); err == nil {
				version = v + 1
			}
		}
	}
	metadataDir := strings.TrimSuffix(tableLocation, "/") + "/metadata"
	name := zeroPad(version, 5) + "-" + uuid.NewString() + ".metadata.json"
	return metadataDir + "/" + name
}

func zeroPad(n, width int) string {
	s := strconv.Itoa(n)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

func maxFieldIDRecursive(fields []model.StructField) int {
	max := 0
	for _, f := range fields {
		if f.ID > max {
			max = f.ID
		}
		if st, ok := f.Type.(*model.StructType); ok && st != nil {
			if nested := maxFieldIDRecursive(st.Fields); nested > max {
				max = nested
			}
		}
	}
	return max
}

// BuildInitialTableMetadata constructs the metadata for a brand-new
// table and the location its first version will be written to.
func BuildInitialTableMetadata(
	schema model.Schema,
	partitionSpec *model.PartitionSpec,
	sortOrder *model.SortOrder,
	properties map[string]string,
	tableLocation string,
) (*model.TableMetadata, string) {
	maxID := maxFieldIDRecursive(schema.Fields)

	if schema.SchemaID == nil {
		zero := 0
		schema.SchemaID = &zero
	}

	lastPartitionID := 0
	partitionSpecs := []model.PartitionSpec{}
	defaultSpecID := 0
	if partitionSpec != nil {
		partitionSpecs = append(partitionSpecs, *partitionSpec)
		defaultSpecID = partitionSpec.SpecID
		lastPartitionID = partitionSpec.MaxFieldID()
	}

	sortOrders := []model.SortOrder{}
	defaultSortOrderID := 0
	if sortOrder != nil {
		sortOrders = append(sortOrders, *sortOrder)
		defaultSortOrderID = sortOrder.OrderID
	}

	now := NowFunc()
	tableUUID := uuid.NewString()

	metadata := &model.TableMetadata{
		FormatVersion:      1,
		TableUUID:          tableUUID,
		Location:           tableLocation,
		LastUpdatedMs:      now,
		LastColumnID:       maxID,
		Schemas:            []model.Schema{schema},
		CurrentSchemaID:    *schema.SchemaID,
		PartitionSpecs:     partitionSpecs,
		DefaultSpecID:      defaultSpecID,
		LastPartitionID:    lastPartitionID,
		Properties:         properties,
		CurrentSnapshotID:  nil,
		Snapshots:          []model.Snapshot{},
		SnapshotLog:        []model.LogEntry{},
		MetadataLog:        []model.MetadataLogEntry{},
		SortOrders:         sortOrders,
		DefaultSortOrderID: defaultSortOrderID,
		Refs:               map[string]model.SnapshotRef{},
	}

	newLocation := GenerateNewMetadataLocation(tableLocation, "")
	metadata.MetadataLog = []model.MetadataLogEntry{{TimestampMs: now, MetadataFile: newLocation}}

	return metadata, newLocation
}

// ApplyUpdates returns a deep copy of current with each update applied
// in order. The input is never mutated. overrideLocation, when non-empty,
// wins over any SetLocation update's own Location field (used when the
// commit pipeline already computed the table's base location).
func ApplyUpdates(current *model.TableMetadata, updates []model.TableUpdate, overrideLocation string) (*model.TableMetadata, error) {
	newMetadata, err := current.DeepCopy()
	if err != nil {
		return nil, catalogerr.Wrap(err)
	}

	newMetadata.LastUpdatedMs = NowFunc()

	for _, update := range updates {
		if err := applyOne(newMetadata, update, overrideLocation); err != nil {
			return nil, err
		}
	}

	return newMetadata, nil
}

func applyOne(m *model.TableMetadata, u model.TableUpdate, overrideLocation string) error {
	switch u.Action {
	case model.UpdateAssignUUID:
		m.TableUUID = u.UUID

	case model.UpdateUpgradeFormatVersion:
		if u.FormatVersion < m.FormatVersion {
			return catalogerr.NewCommitFailed("cannot downgrade format version from %d to %d", m.FormatVersion, u.FormatVersion)
		}
		m.FormatVersion = u.FormatVersion

	case model.UpdateAddSchema:
		if u.Schema == nil {
			return catalogerr.NewBadRequest("add-schema update missing schema")
		}
		schemaID := 0
		if u.Schema.SchemaID != nil {
			schemaID = *u.Schema.SchemaID
		}
		if m.HasSchema(schemaID) {
			return catalogerr.NewCommitFailed("schema with id %d already exists", schemaID)
		}
		m.Schemas = append(m.Schemas, *u.Schema)
		newMax := maxFieldIDRecursive(u.Schema.Fields)
		if newMax > m.LastColumnID {
			m.LastColumnID = newMax
		}
		if u.LastColumnID != nil && *u.LastColumnID > m.LastColumnID {
			m.LastColumnID = *u.LastColumnID
		}

	case model.UpdateSetCurrentSchema:
		if !m.HasSchema(u.SchemaID) {
			return catalogerr.NewCommitFailed("schema with id %d not found in existing schemas", u.SchemaID)
		}
		m.CurrentSchemaID = u.SchemaID

	case model.UpdateAddPartitionSpec:
		if u.Spec == nil {
			return catalogerr.NewBadRequest("add-spec update missing spec")
		}
		for _, ps := range m.PartitionSpecs {
			if ps.SpecID == u.Spec.SpecID {
				return catalogerr.NewCommitFailed("partition spec with id %d already exists", u.Spec.SpecID)
			}
		}
		m.PartitionSpecs = append(m.PartitionSpecs, *u.Spec)
		if newMax := u.Spec.MaxFieldID(); newMax > m.LastPartitionID {
			m.LastPartitionID = newMax
		}

	case model.UpdateSetDefaultSpec:
		found := false
		for _, ps := range m.PartitionSpecs {
			if ps.SpecID == u.SpecID {
				found = true
				break
			}
		}
		if !found {
			return catalogerr.NewCommitFailed("partition spec with id %d not found", u.SpecID)
		}
		m.DefaultSpecID = u.SpecID

	case model.UpdateAddSortOrder:
		if u.SortOrder == nil {
			return catalogerr.NewBadRequest("add-sort-order update missing sort order")
		}
		for _, so := range m.SortOrders {
			if so.OrderID == u.SortOrder.OrderID {
				return catalogerr.NewCommitFailed("sort order with id %d already exists", u.SortOrder.OrderID)
			}
		}
		m.SortOrders = append(m.SortOrders, *u.SortOrder)

	case model.UpdateSetDefaultSortOrder:
		found := false
		for _, so := range m.SortOrders {
			if so.OrderID == u.SortOrderID {
				found = true
				break
			}
		}
		if !found {
			return catalogerr.NewCommitFailed("sort order with id %d not found", u.SortOrderID)
		}
		m.DefaultSortOrderID = u.SortOrderID

	case model.UpdateAddSnapshot:
		if u.Snapshot == nil {
			return catalogerr.NewBadRequest("add-snapshot update missing snapshot")
		}
		m.Snapshots = append(m.Snapshots, *u.Snapshot)
		snapID := u.Snapshot.SnapshotID
		m.CurrentSnapshotID = &snapID
		m.SnapshotLog = append(m.SnapshotLog, model.LogEntry{
			TimestampMs: u.Snapshot.TimestampMs,
			SnapshotID:  snapID,
		})
		if m.Refs == nil {
			m.Refs = map[string]model.SnapshotRef{}
		}
		m.Refs[model.MainBranch] = model.SnapshotRef{SnapshotID: snapID, Type: "branch"}

	case model.UpdateSetSnapshotRef:
		if m.Refs == nil {
			m.Refs = map[string]model.SnapshotRef{}
		}
		ref := model.SnapshotRef{Type: u.RefType}
		if u.RefSnapshotID != nil {
			ref.SnapshotID = *u.RefSnapshotID
		}
		ref.MinSnapshotsToKeep = u.MinSnapshotsToKeep
		ref.MaxSnapshotAgeMs = u.MaxSnapshotAgeMs
		ref.MaxRefAgeMs = u.MaxRefAgeMs
		m.Refs[u.RefName] = ref

	case model.UpdateRemoveSnapshotRef:
		delete(m.Refs, u.RefName)

	case model.UpdateRemoveSnapshots:
		removed := make(map[int64]bool, len(u.SnapshotIDs))
		for _, id := range u.SnapshotIDs {
			removed[id] = true
		}
		kept := m.Snapshots[:0:0]
		for _, s := range m.Snapshots {
			if !removed[s.SnapshotID] {
				kept = append(kept, s)
			}
		}
		m.Snapshots = kept
		if m.CurrentSnapshotID != nil && removed[*m.CurrentSnapshotID] {
			m.CurrentSnapshotID = nil
		}
		for name, ref := range m.Refs {
			if removed[ref.SnapshotID] {
				delete(m.Refs, name)
			}
		}

	case model.UpdateSetProperties:
		if m.Properties == nil {
			m.Properties = map[string]string{}
		}
		for k, v := range u.Updates {
			m.Properties[k] = v
		}

	case model.UpdateRemoveProperties:
		for _, key := range u.Removals {
			delete(m.Properties, key)
		}

	case model.UpdateSetLocation:
		if overrideLocation != "" {
			m.Location = overrideLocation
		} else {
			m.Location = u.Location
		}

	default:
		return catalogerr.NewBadRequest("unsupported table update action: %q", u.Action)
	}
	return nil
}
