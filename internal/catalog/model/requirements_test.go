package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Pins the wire string for every requirement kind against the literal
// JSON a client sends, so a typo in a constant shows up here instead of
// silently falling through checkRequirements' default case.
func TestRequirementKindWireStrings(t *testing.T) {
	cases := map[string]RequirementKind{
		`{"type":"assert-create"}`:                       RequirementAssertCreate,
		`{"type":"assert-table-uuid"}`:                   RequirementAssertTableUUID,
		`{"type":"assert-ref-snapshot-id"}`:               RequirementAssertRefSnapshotID,
		`{"type":"assert-last-assigned-field-id"}`:        RequirementAssertLastAssignedFieldID,
		`{"type":"assert-current-schema-id"}`:             RequirementAssertCurrentSchemaID,
		`{"type":"assert-last-assigned-partition-id"}`:    RequirementAssertLastAssignedPartID,
		`{"type":"assert-default-spec-id"}`:                RequirementAssertDefaultSpecID,
		`{"type":"assert-default-sort-order-id"}`:          RequirementAssertDefaultSortOrderID,
	}

	for wire, want := range cases {
		var r TableRequirement
		require.NoError(t, json.Unmarshal([]byte(wire), &r))
		assert.Equal(t, want, r.Type, "wire %s", wire)
	}
}
