package model

import (
	"encoding/json"
	"fmt"
)

// RequirementKind discriminates the TableRequirement tagged union on its
// wire "type" field.
type RequirementKind string

const (
	RequirementAssertCreate              RequirementKind = "assert-create"
	RequirementAssertTableUUID           RequirementKind = "assert-table-uuid"
	RequirementAssertRefSnapshotID       RequirementKind = "assert-ref-snapshot-id"
	RequirementAssertLastAssignedFieldID RequirementKind = "assert-last-assigned-field-id"
	RequirementAssertCurrentSchemaID     RequirementKind = "assert-current-schema-id"
	RequirementAssertLastAssignedPartID  RequirementKind = "assert-last-assigned-partition-id"
	RequirementAssertDefaultSpecID       RequirementKind = "assert-default-spec-id"
	RequirementAssertDefaultSortOrderID  RequirementKind = "assert-default-sort-order-id"
)

// TableRequirement is a precondition asserted over current metadata
// before a commit applies. Only the fields relevant to Type are set.
type TableRequirement struct {
	Type               RequirementKind `json:"type"`
	UUID               string          `json:"uuid,omitempty"`
	Ref                string          `json:"ref,omitempty"`
	SnapshotID         *int64          `json:"snapshot-id,omitempty"`
	CurrentSchemaID    *int            `json:"current-schema-id,omitempty"`
	LastAssignedFieldID *int           `json:"last-assigned-field-id,omitempty"`
	DefaultSpecID      *int            `json:"default-spec-id,omitempty"`
	DefaultSortOrderID *int            `json:"default-sort-order-id,omitempty"`
}

func (r TableRequirement) MarshalJSON() ([]byte, error) {
	type alias TableRequirement
	return json.Marshal(alias(r))
}

func (r *TableRequirement) UnmarshalJSON(data []byte) error {
	type alias TableRequirement
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("decoding table requirement: %w", err)
	}
	*r = TableRequirement(a)
	return nil
}
