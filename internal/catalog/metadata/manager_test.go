package metadata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icebergrest/catalog/internal/catalog/catalogerr"
	"github.com/icebergrest/catalog/internal/catalog/model"
)

func intPtr(i int) *int       { return &i }
func i64Ptr(i int64) *int64   { return &i }

func sampleSchema() model.Schema {
	return model.Schema{
		Type:     "struct",
		SchemaID: intPtr(0),
		Fields: []model.StructField{
			{ID: 1, Name: "x", Type: model.PrimitiveType("int"), Required: false},
			{ID: 2, Name: "y", Type: model.PrimitiveType("string"), Required: true},
		},
	}
}

func TestGenerateNewMetadataLocationStartsAtZero(t *testing.T) {
	loc := GenerateNewMetadataLocation("/warehouse/db/t", "")
	assert.True(t, strings.HasPrefix(loc, "/warehouse/db/t/metadata/00000-"))
	assert.True(t, strings.HasSuffix(loc, ".metadata.json"))
}

func TestGenerateNewMetadataLocationIncrementsVersion(t *testing.T) {
	old := "/warehouse/db/t/metadata/00007-abc.metadata.json"
	loc := GenerateNewMetadataLocation("/warehouse/db/t", old)
	assert.True(t, strings.HasPrefix(loc, "/warehouse/db/t/metadata/00008-"))
}

func TestGenerateNewMetadataLocationFallsBackToZeroOnBadPrefix(t *testing.T) {
	old := "/warehouse/db/t/metadata/not-a-version.metadata.json"
	loc := GenerateNewMetadataLocation("/warehouse/db/t", old)
	assert.True(t, strings.HasPrefix(loc, "/warehouse/db/t/metadata/00000-"))
}

func TestGenerateNewMetadataLocationIsUniquePerCall(t *testing.T) {
	a := GenerateNewMetadataLocation("/warehouse/db/t", "")
	b := GenerateNewMetadataLocation("/warehouse/db/t", "")
	assert.NotEqual(t, a, b)
}

func TestBuildInitialTableMetadata(t *testing.T) {
	schema := sampleSchema()
	m, loc := BuildInitialTableMetadata(schema, nil, nil, map[string]string{"owner": "me"}, "/warehouse/db/t")

	assert.Equal(t, 1, m.FormatVersion)
	assert.NotEmpty(t, m.TableUUID)
	assert.Equal(t, "/warehouse/db/t", m.Location)
	assert.Equal(t, 2, m.LastColumnID)
	assert.Equal(t, 0, m.CurrentSchemaID)
	assert.Empty(t, m.PartitionSpecs)
	assert.Equal(t, 0, m.DefaultSpecID)
	assert.Nil(t, m.CurrentSnapshotID)
	assert.Empty(t, m.Snapshots)
	assert.Equal(t, map[string]string{"owner": "me"}, m.Properties)
	require.Len(t, m.MetadataLog, 1)
	assert.Equal(t, loc, m.MetadataLog[0].MetadataFile)
	assert.Contains(t, loc, "/warehouse/db/t/metadata/00000-")
}

func TestBuildInitialTableMetadataWithPartitionSpec(t *testing.T) {
	schema := sampleSchema()
	spec := &model.PartitionSpec{SpecID: 0, Fields: []model.PartitionField{{SourceID: 1, FieldID: 1000, Name: "x_bucket", Transform: "bucket[4]"}}}

	m, _ := BuildInitialTableMetadata(schema, spec, nil, nil, "/warehouse/db/t")
	assert.Equal(t, 0, m.DefaultSpecID)
	assert.Equal(t, 1000, m.LastPartitionID)
	require.Len(t, m.PartitionSpecs, 1)
}

func TestApplyUpdatesDoesNotMutateInput(t *testing.T) {
	schema := sampleSchema()
	current, _ := BuildInitialTableMetadata(schema, nil, nil, nil, "/warehouse/db/t")
	snapshot := model.Snapshot{SnapshotID: 1, TimestampMs: 1000, ManifestList: "s3://x/manifest-list"}

	updated, err := ApplyUpdates(current, []model.TableUpdate{
		{Action: model.UpdateAddSnapshot, Snapshot: &snapshot},
	}, "")
	require.NoError(t, err)

	assert.Nil(t, current.CurrentSnapshotID)
	assert.Empty(t, current.Snapshots)
	require.NotNil(t, updated.CurrentSnapshotID)
	assert.Equal(t, int64(1), *updated.CurrentSnapshotID)
	require.Len(t, updated.Snapshots, 1)
	assert.Equal(t, "main", func() string {
		for name := range updated.Refs {
			return name
		}
		return ""
	}())
}

func TestApplyUpdatesAddSchemaThenSetCurrentSchema(t *testing.T) {
	schema := sampleSchema()
	current, _ := BuildInitialTableMetadata(schema, nil, nil, nil, "/warehouse/db/t")

	newSchema := model.Schema{
		SchemaID: intPtr(1),
		Fields:   []model.StructField{{ID: 1, Name: "x", Type: model.PrimitiveType("int")}, {ID: 3, Name: "z", Type: model.PrimitiveType("long")}},
	}

	updated, err := ApplyUpdates(current, []model.TableUpdate{
		{Action: model.UpdateAddSchema, Schema: &newSchema},
		{Action: model.UpdateSetCurrentSchema, SchemaID: 1},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, updated.CurrentSchemaID)
	assert.Equal(t, 3, updated.LastColumnID)
}

func TestApplyUpdatesSetCurrentSchemaUnknownIDFails(t *testing.T) {
	schema := sampleSchema()
	current, _ := BuildInitialTableMetadata(schema, nil, nil, nil, "/warehouse/db/t")

	_, err := ApplyUpdates(current, []model.TableUpdate{
		{Action: model.UpdateSetCurrentSchema, SchemaID: 99},
	}, "")
	require.Error(t, err)
	ce, ok := catalogerr.As(err)
	require.True(t, ok)
	assert.Equal(t, catalogerr.CommitFailed, ce.Code)
}

func TestApplyUpdatesDowngradeFormatVersionFails(t *testing.T) {
	schema := sampleSchema()
	current, _ := BuildInitialTableMetadata(schema, nil, nil, nil, "/warehouse/db/t")
	current.FormatVersion = 2

	_, err := ApplyUpdates(current, []model.TableUpdate{
		{Action: model.UpdateUpgradeFormatVersion, FormatVersion: 1},
	}, "")
	require.Error(t, err)
	ce, ok := catalogerr.As(err)
	require.True(t, ok)
	assert.Equal(t, catalogerr.CommitFailed, ce.Code)
}

func TestApplyUpdatesRemoveSnapshotsClearsCurrentAndRefs(t *testing.T) {
	schema := sampleSchema()
	current, _ := BuildInitialTableMetadata(schema, nil, nil, nil, "/warehouse/db/t")
	snap := model.Snapshot{SnapshotID: 42, TimestampMs: 1}
	withSnap, err := ApplyUpdates(current, []model.TableUpdate{{Action: model.UpdateAddSnapshot, Snapshot: &snap}}, "")
	require.NoError(t, err)

	updated, err := ApplyUpdates(withSnap, []model.TableUpdate{
		{Action: model.UpdateRemoveSnapshots, SnapshotIDs: []int64{42}},
	}, "")
	require.NoError(t, err)
	assert.Nil(t, updated.CurrentSnapshotID)
	assert.Empty(t, updated.Snapshots)
	_, hasMain := updated.Refs[model.MainBranch]
	assert.False(t, hasMain)
}

func TestApplyUpdatesSetAndRemoveProperties(t *testing.T) {
	schema := sampleSchema()
	current, _ := BuildInitialTableMetadata(schema, nil, nil, map[string]string{"a": "1"}, "/warehouse/db/t")

	updated, err := ApplyUpdates(current, []model.TableUpdate{
		{Action: model.UpdateSetProperties, Updates: map[string]string{"b": "2"}},
		{Action: model.UpdateRemoveProperties, Removals: []string{"a"}},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": "2"}, updated.Properties)
}

func TestApplyUpdatesSetLocationHonorsOverride(t *testing.T) {
	schema := sampleSchema()
	current, _ := BuildInitialTableMetadata(schema, nil, nil, nil, "/warehouse/db/t")

	updated, err := ApplyUpdates(current, []model.TableUpdate{
		{Action: model.UpdateSetLocation, Location: "/requested"},
	}, "/override")
	require.NoError(t, err)
	assert.Equal(t, "/override", updated.Location)
}

func TestApplyUpdatesUnknownActionIsBadRequest(t *testing.T) {
	schema := sampleSchema()
	current, _ := BuildInitialTableMetadata(schema, nil, nil, nil, "/warehouse/db/t")

	_, err := ApplyUpdates(current, []model.TableUpdate{{Action: "bogus-action"}}, "")
	require.Error(t, err)
	ce, ok := catalogerr.As(err)
	require.True(t, ok)
	assert.Equal(t, catalogerr.BadRequest, ce.Code)
}
