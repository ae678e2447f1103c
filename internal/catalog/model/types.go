// Package model holds the wire/value types for table metadata, mirroring
// the Iceberg REST Catalog's dashed JSON field names.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// IcebergType is either a primitive name ("int", "string", ...) or one of
// the nested struct/list/map types. Go has no sum types, so it is modeled
// as an interface; a custom UnmarshalJSON on the container types tells
// the cases apart when decoding, while encoding uses the default
// marshaling of each case.
type IcebergType interface {
	isIcebergType()
}

// PrimitiveType is a bare type name: "boolean", "int", "long", "string", ...
type PrimitiveType string

func (PrimitiveType) isIcebergType() {}

type StructField struct {
	ID       int         `json:"id"`
	Name     string      `json:"name"`
	Type     IcebergType `json:"type"`
	Required bool        `json:"required"`
	Doc      string      `json:"doc,omitempty"`
}

type StructType struct {
	Type   string        `json:"type"`
	Fields []StructField `json:"fields"`
}

func (*StructType) isIcebergType() {}

type ListType struct {
	Type            string      `json:"type"`
	ElementID       int         `json:"element-id"`
	Element         IcebergType `json:"element"`
	ElementRequired bool        `json:"element-required"`
}

func (*ListType) isIcebergType() {}

type MapType struct {
	Type          string      `json:"type"`
	KeyID         int         `json:"key-id"`
	Key           IcebergType `json:"key"`
	ValueID       int         `json:"value-id"`
	Value         IcebergType `json:"value"`
	ValueRequired bool        `json:"value-required"`
}

func (*MapType) isIcebergType() {}

// UnmarshalIcebergType decodes a raw JSON value into the right IcebergType
// case: a plain quoted string is a PrimitiveType, an object is dispatched
// on its "type" discriminator.
func UnmarshalIcebergType(raw json.RawMessage) (IcebergType, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}
	if trimmed[0] == '"' {
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return nil, fmt.Errorf("decoding primitive type: %w", err)
		}
		return PrimitiveType(name), nil
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, fmt.Errorf("decoding type discriminator: %w", err)
	}

	switch probe.Type {
	case "struct":
		var raw struct {
			Type   string          `json:"type"`
			Fields []structFieldJS `json:"fields"`
		}
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, err
		}
		fields := make([]StructField, 0, len(raw.Fields))
		for _, f := range raw.Fields {
			t, err := UnmarshalIcebergType(f.Type)
			if err != nil {
				return nil, err
			}
			fields = append(fields, StructField{ID: f.ID, Name: f.Name, Type: t, Required: f.Required, Doc: f.Doc})
		}
		return &StructType{Type: "struct", Fields: fields}, nil
	case "list":
		var raw struct {
			Type            string          `json:"type"`
			ElementID       int             `json:"element-id"`
			Element         json.RawMessage `json:"element"`
			ElementRequired bool            `json:"element-required"`
		}
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, err
		}
		elem, err := UnmarshalIcebergType(raw.Element)
		if err != nil {
			return nil, err
		}
		return &ListType{Type: "list", ElementID: raw.ElementID, Element: elem, ElementRequired: raw.ElementRequired}, nil
	case "map":
		var raw struct {
			Type          string          `json:"type"`
			KeyID         int             `json:"key-id"`
			Key           json.RawMessage `json:"key"`
			ValueID       int             `json:"value-id"`
			Value         json.RawMessage `json:"value"`
			ValueRequired bool            `json:"value-required"`
		}
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, err
		}
		key, err := UnmarshalIcebergType(raw.Key)
		if err != nil {
			return nil, err
		}
		val, err := UnmarshalIcebergType(raw.Value)
		if err != nil {
			return nil, err
		}
		return &MapType{Type: "map", KeyID: raw.KeyID, Key: key, ValueID: raw.ValueID, Value: val, ValueRequired: raw.ValueRequired}, nil
	default:
		return nil, fmt.Errorf("unknown iceberg type discriminator %q", probe.Type)
	}
}

type structFieldJS struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Type     json.RawMessage `json:"type"`
	Required bool            `json:"required"`
	Doc      string          `json:"doc,omitempty"`
}

func (f *StructField) UnmarshalJSON(data []byte) error {
	var raw structFieldJS
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, err := UnmarshalIcebergType(raw.Type)
	if err != nil {
		return err
	}
	f.ID, f.Name, f.Required, f.Doc = raw.ID, raw.Name, raw.Required, raw.Doc
	f.Type = t
	return nil
}

func (s *StructType) UnmarshalJSON(data []byte) error {
	t, err := UnmarshalIcebergType(data)
	if err != nil {
		return err
	}
	st, ok := t.(*StructType)
	if !ok {
		return fmt.Errorf("expected struct type")
	}
	*s = *st
	return nil
}

// Schema is a named, ordered set of struct fields with a stable schema id.
type Schema struct {
	Type              string        `json:"type"`
	SchemaID          *int          `json:"schema-id,omitempty"`
	Fields            []StructField `json:"fields"`
	IdentifierFieldIDs []int        `json:"identifier-field-ids,omitempty"`
}

// MaxFieldID returns the largest field id used anywhere in the schema,
// descending recursively into struct-typed fields.
func (s Schema) MaxFieldID() int {
	return maxFieldIDOfFields(s.Fields)
}

func maxFieldIDOfFields(fields []StructField) int {
	max := 0
	for _, f := range fields {
		if f.ID > max {
			max = f.ID
		}
		if st, ok := f.Type.(*StructType); ok && st != nil {
			if nested := maxFieldIDOfFields(st.Fields); nested > max {
				max = nested
			}
		}
	}
	return max
}

type PartitionField struct {
	SourceID  int    `json:"source-id"`
	FieldID   int    `json:"field-id"`
	Name      string `json:"name"`
	Transform string `json:"transform"`
}

type PartitionSpec struct {
	SpecID int              `json:"spec-id"`
	Fields []PartitionField `json:"fields"`
}

func (p PartitionSpec) MaxFieldID() int {
	max := 0
	for _, f := range p.Fields {
		if f.FieldID > max {
			max = f.FieldID
		}
	}
	return max
}

type SortField struct {
	SourceID  int    `json:"source-id"`
	Transform string `json:"transform"`
	Direction string `json:"direction"`
	NullOrder string `json:"null-order"`
}

type SortOrder struct {
	OrderID int         `json:"order-id"`
	Fields  []SortField `json:"fields"`
}

type Snapshot struct {
	SnapshotID   int64             `json:"snapshot-id"`
	ParentID     *int64            `json:"parent-id,omitempty"`
	TimestampMs  int64             `json:"timestamp-ms"`
	Summary      map[string]string `json:"summary,omitempty"`
	ManifestList string            `json:"manifest-list"`
	SchemaID     *int              `json:"schema-id,omitempty"`
}

type LogEntry struct {
	TimestampMs int64 `json:"timestamp-ms"`
	SnapshotID  int64 `json:"snapshot-id"`
}

type MetadataLogEntry struct {
	TimestampMs  int64  `json:"timestamp-ms"`
	MetadataFile string `json:"metadata-file"`
}

type SnapshotRef struct {
	SnapshotID        int64  `json:"snapshot-id"`
	Type              string `json:"type"` // "branch" | "tag"
	MinSnapshotsToKeep *int   `json:"min-snapshots-to-keep,omitempty"`
	MaxSnapshotAgeMs   *int64 `json:"max-snapshot-age-ms,omitempty"`
	MaxRefAgeMs        *int64 `json:"max-ref-age-ms,omitempty"`
}

const MainBranch = "main"

// TableMetadata is the immutable value object written to the metadata
// file pointed at by a catalog table row.
type TableMetadata struct {
	FormatVersion      int                 `json:"format-version"`
	TableUUID          string              `json:"table-uuid"`
	Location           string              `json:"location"`
	LastUpdatedMs      int64               `json:"last-updated-ms"`
	LastColumnID       int                 `json:"last-column-id"`
	Schemas            []Schema            `json:"schemas"`
	CurrentSchemaID    int                 `json:"current-schema-id"`
	PartitionSpecs     []PartitionSpec     `json:"partition-specs"`
	DefaultSpecID      int                 `json:"default-spec-id"`
	LastPartitionID    int                 `json:"last-partition-id"`
	Properties         map[string]string   `json:"properties,omitempty"`
	CurrentSnapshotID  *int64              `json:"current-snapshot-id,omitempty"`
	Snapshots          []Snapshot          `json:"snapshots"`
	SnapshotLog        []LogEntry          `json:"snapshot-log"`
	MetadataLog        []MetadataLogEntry  `json:"metadata-log"`
	SortOrders         []SortOrder         `json:"sort-orders"`
	DefaultSortOrderID int                 `json:"default-sort-order-id"`
	Refs               map[string]SnapshotRef `json:"refs"`
}

// DeepCopy returns an independent copy of the metadata, sharing no
// nested slices or maps with the receiver. A JSON round-trip is cheap,
// allocation-light, and correct by construction for a value object whose
// canonical form is already JSON.
func (m *TableMetadata) DeepCopy() (*TableMetadata, error) {
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata for copy: %w", err)
	}
	var out TableMetadata
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata for copy: %w", err)
	}
	return &out, nil
}

// CurrentSchema returns the schema matching CurrentSchemaID, or nil.
func (m *TableMetadata) CurrentSchema() *Schema {
	for i := range m.Schemas {
		id := 0
		if m.Schemas[i].SchemaID != nil {
			id = *m.Schemas[i].SchemaID
		}
		if id == m.CurrentSchemaID {
			return &m.Schemas[i]
		}
	}
	return nil
}

// HasSchema reports whether a schema with the given id exists.
func (m *TableMetadata) HasSchema(id int) bool {
	for _, s := range m.Schemas {
		sid := 0
		if s.SchemaID != nil {
			sid = *s.SchemaID
		}
		if sid == id {
			return true
		}
	}
	return false
}

// HasSnapshot reports whether a snapshot with the given id exists.
func (m *TableMetadata) HasSnapshot(id int64) bool {
	for _, s := range m.Snapshots {
		if s.SnapshotID == id {
			return true
		}
	}
	return false
}

// Namespace is a hierarchical, dot-addressable label sequence with
// catalog properties.
type Namespace struct {
	Levels     []string          `json:"namespace"`
	Properties map[string]string `json:"properties,omitempty"`
}
