package model

import (
	"encoding/json"
	"fmt"
)

// UpdateAction discriminates the TableUpdate tagged union on its wire
// "action" field.
type UpdateAction string

const (
	UpdateAssignUUID          UpdateAction = "assign-uuid"
	UpdateUpgradeFormatVersion UpdateAction = "upgrade-format-version"
	UpdateAddSchema           UpdateAction = "add-schema"
	UpdateSetCurrentSchema    UpdateAction = "set-current-schema"
	UpdateAddPartitionSpec    UpdateAction = "add-spec"
	UpdateSetDefaultSpec      UpdateAction = "set-default-spec"
	UpdateAddSortOrder        UpdateAction = "add-sort-order"
	UpdateSetDefaultSortOrder UpdateAction = "set-default-sort-order"
	UpdateAddSnapshot         UpdateAction = "add-snapshot"
	UpdateSetSnapshotRef      UpdateAction = "set-snapshot-ref"
	UpdateRemoveSnapshotRef   UpdateAction = "remove-snapshot-ref"
	UpdateRemoveSnapshots     UpdateAction = "remove-snapshots"
	UpdateSetProperties       UpdateAction = "set-properties"
	UpdateRemoveProperties    UpdateAction = "remove-properties"
	UpdateSetLocation         UpdateAction = "set-location"
)

// TableUpdate is one typed mutation applied, in order, to produce new
// table metadata. It is a tagged union keyed by Action; only the fields
// relevant to that action are populated. Go lacks sum types, so the
// zero-value-means-absent fields plus the switch in
// internal/catalog/metadata's ApplyUpdates, which rejects unknown
// actions, stand in for an exhaustive match.
type TableUpdate struct {
	Action UpdateAction `json:"action"`

	// assign-uuid
	UUID string `json:"uuid,omitempty"`

	// upgrade-format-version
	FormatVersion int `json:"format-version,omitempty"`

	// add-schema
	Schema              *Schema `json:"schema,omitempty"`
	LastColumnID        *int    `json:"last-column-id,omitempty"`

	// set-current-schema
	SchemaID int `json:"schema-id,omitempty"`

	// add-spec
	Spec *PartitionSpec `json:"spec,omitempty"`

	// set-default-spec
	SpecID int `json:"spec-id,omitempty"`

	// add-sort-order
	SortOrder *SortOrder `json:"sort-order,omitempty"`

	// set-default-sort-order
	SortOrderID int `json:"sort-order-id,omitempty"`

	// add-snapshot
	Snapshot *Snapshot `json:"snapshot,omitempty"`

	// set-snapshot-ref / remove-snapshot-ref
	RefName            string `json:"ref-name,omitempty"`
	RefType            string `json:"type,omitempty"`
	RefSnapshotID       *int64 `json:"snapshot-id,omitempty"`
	MaxRefAgeMs         *int64 `json:"max-ref-age-ms,omitempty"`
	MaxSnapshotAgeMs    *int64 `json:"max-snapshot-age-ms,omitempty"`
	MinSnapshotsToKeep  *int   `json:"min-snapshots-to-keep,omitempty"`

	// remove-snapshots
	SnapshotIDs []int64 `json:"snapshot-ids,omitempty"`

	// set-properties
	Updates map[string]string `json:"updates,omitempty"`

	// remove-properties
	Removals []string `json:"removals,omitempty"`

	// set-location
	Location string `json:"location,omitempty"`
}

func (u TableUpdate) MarshalJSON() ([]byte, error) {
	type alias TableUpdate
	return json.Marshal(alias(u))
}

func (u *TableUpdate) UnmarshalJSON(data []byte) error {
	type alias TableUpdate
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("decoding table update: %w", err)
	}
	*u = TableUpdate(a)
	return nil
}
