package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icebergrest/catalog/internal/catalog/catalogerr"
	"github.com/icebergrest/catalog/internal/catalog/model"
	"github.com/icebergrest/catalog/internal/catalog/storage"
)

type noopRecorder struct{}

func (noopRecorder) RecordDBQuery(ctx context.Context, operation string, duration time.Duration, success bool) {
}
func (noopRecorder) WrapDBQuery(ctx context.Context, operation string, fn func() error) error {
	return fn()
}
func (noopRecorder) RecordCommitAttempt(ctx context.Context, outcome string) {}

func newTestService(t *testing.T) *Service {
	t.Helper()
	accessor := storage.New(t.TempDir(), nil)
	st := newFakeStore()
	require.NoError(t, st.CreateNamespace(context.Background(), []string{"db"}, nil))
	return New(st, accessor, noopRecorder{}, accessor.WarehouseRoot())
}

func sampleSchema() model.Schema {
	return model.Schema{
		Type:   "struct",
		Fields: []model.StructField{{ID: 1, Name: "x", Type: model.PrimitiveType("int"), Required: false}},
	}
}

// S1. Create-load-drop.
func TestCreateLoadDropTable(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTable(ctx, []string{"db"}, CreateTableRequest{Name: "t", Schema: sampleSchema()})
	require.NoError(t, err)
	assert.NotEmpty(t, created.Metadata.TableUUID)
	assert.True(t, strings.HasSuffix(created.MetadataLocation, ".metadata.json"))
	assert.Contains(t, created.MetadataLocation, "00000-")

	loaded, err := svc.LoadTable(ctx, []string{"db"}, "t", "")
	require.NoError(t, err)
	assert.Equal(t, created.MetadataLocation, loaded.MetadataLocation)

	require.NoError(t, svc.DropTable(ctx, []string{"db"}, "t", false))

	_, err = svc.LoadTable(ctx, []string{"db"}, "t", "")
	require.Error(t, err)
	ce, ok := catalogerr.As(err)
	require.True(t, ok)
	assert.Equal(t, catalogerr.NoSuchTable, ce.Code)
}

// S2. Concurrent commit race: exactly one of two racing AddSnapshot
// commits succeeds; the loser's candidate file never lands on disk.
func TestConcurrentCommitRaceHasExactlyOneWinner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTable(ctx, []string{"db"}, CreateTableRequest{Name: "t", Schema: sampleSchema()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*LoadTableResult, 2)
	errs := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := CommitTableRequest{
				Updates: []model.TableUpdate{
					{Action: model.UpdateAddSnapshot, Snapshot: &model.Snapshot{SnapshotID: int64(i + 1), TimestampMs: 1, ManifestList: "s3://x/manifest-list"}},
				},
			}
			results[i], errs[i] = svc.CommitTable(ctx, []string{"db"}, "t", req)
		}(i)
	}
	wg.Wait()

	successes := 0
	var winnerLocation string
	for i := 0; i < 2; i++ {
		if errs[i] == nil {
			successes++
			winnerLocation = results[i].MetadataLocation
		} else {
			ce, ok := catalogerr.As(errs[i])
			require.True(t, ok)
			assert.Equal(t, catalogerr.CommitFailed, ce.Code)
		}
	}
	assert.Equal(t, 1, successes)
	require.NotEmpty(t, winnerLocation)
	assert.Contains(t, winnerLocation, "00001-")

	_ = created
}

// S3. Requirement failure leaves the metadata file unchanged.
func TestCommitTableAssertTableUUIDMismatchFails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTable(ctx, []string{"db"}, CreateTableRequest{Name: "t", Schema: sampleSchema()})
	require.NoError(t, err)

	_, err = svc.CommitTable(ctx, []string{"db"}, "t", CommitTableRequest{
		Requirements: []model.TableRequirement{{Type: model.RequirementAssertTableUUID, UUID: "wrong-uuid"}},
		Updates:      []model.TableUpdate{{Action: model.UpdateSetProperties, Updates: map[string]string{"a": "1"}}},
	})
	require.Error(t, err)
	ce, ok := catalogerr.As(err)
	require.True(t, ok)
	assert.Equal(t, catalogerr.CommitFailed, ce.Code)

	loaded, err := svc.LoadTable(ctx, []string{"db"}, "t", "")
	require.NoError(t, err)
	assert.Equal(t, created.MetadataLocation, loaded.MetadataLocation)
}

// Requirement that checkRequirements actually reaches the
// AssertLastAssignedFieldID case instead of falling through to the
// unsupported-requirement default.
func TestCommitTableAssertLastAssignedFieldID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTable(ctx, []string{"db"}, CreateTableRequest{Name: "t", Schema: sampleSchema()})
	require.NoError(t, err)
	lastAssigned := created.Metadata.LastColumnID

	_, err = svc.CommitTable(ctx, []string{"db"}, "t", CommitTableRequest{
		Requirements: []model.TableRequirement{{Type: model.RequirementAssertLastAssignedFieldID, LastAssignedFieldID: &lastAssigned}},
		Updates:      []model.TableUpdate{{Action: model.UpdateSetProperties, Updates: map[string]string{"a": "1"}}},
	})
	require.NoError(t, err)

	wrong := lastAssigned + 1
	_, err = svc.CommitTable(ctx, []string{"db"}, "t", CommitTableRequest{
		Requirements: []model.TableRequirement{{Type: model.RequirementAssertLastAssignedFieldID, LastAssignedFieldID: &wrong}},
		Updates:      []model.TableUpdate{{Action: model.UpdateSetProperties, Updates: map[string]string{"b": "2"}}},
	})
	require.Error(t, err)
	ce, ok := catalogerr.As(err)
	require.True(t, ok)
	assert.Equal(t, catalogerr.CommitFailed, ce.Code)
}

// S4. Snapshot-ref load resolves by ref name and by decimal snapshot id;
// an unknown ref is NoSuchTable.
func TestLoadTableBySnapshotRef(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateTable(ctx, []string{"db"}, CreateTableRequest{Name: "t", Schema: sampleSchema()})
	require.NoError(t, err)

	_, err = svc.CommitTable(ctx, []string{"db"}, "t", CommitTableRequest{
		Updates: []model.TableUpdate{
			{Action: model.UpdateAddSnapshot, Snapshot: &model.Snapshot{SnapshotID: 42, TimestampMs: 1, ManifestList: "s3://x/manifest-list"}},
		},
	})
	require.NoError(t, err)

	byRef, err := svc.LoadTable(ctx, []string{"db"}, "t", "main")
	require.NoError(t, err)
	require.NotNil(t, byRef.Metadata.CurrentSnapshotID)
	assert.Equal(t, int64(42), *byRef.Metadata.CurrentSnapshotID)

	byID, err := svc.LoadTable(ctx, []string{"db"}, "t", "42")
	require.NoError(t, err)
	require.NotNil(t, byID.Metadata.CurrentSnapshotID)
	assert.Equal(t, int64(42), *byID.Metadata.CurrentSnapshotID)

	_, err = svc.LoadTable(ctx, []string{"db"}, "t", "nope")
	require.Error(t, err)
	ce, ok := catalogerr.As(err)
	require.True(t, ok)
	assert.Equal(t, catalogerr.NoSuchTable, ce.Code)
}

// Dropping a table with purge deletes its current metadata file.
func TestDropTableWithPurgeRemovesMetadataFiles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTable(ctx, []string{"db"}, CreateTableRequest{Name: "t", Schema: sampleSchema()})
	require.NoError(t, err)

	exists, err := svc.accessor.Exists(ctx, created.MetadataLocation)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, svc.DropTable(ctx, []string{"db"}, "t", true))

	exists, err = svc.accessor.Exists(ctx, created.MetadataLocation)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateTableAgainstMissingNamespaceFails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateTable(ctx, []string{"missing"}, CreateTableRequest{Name: "t", Schema: sampleSchema()})
	require.Error(t, err)
	ce, ok := catalogerr.As(err)
	require.True(t, ok)
	assert.Equal(t, catalogerr.NoSuchNamespace, ce.Code)
}

func TestCommitTableRequestIdentifierMismatchIsBadRequest(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateTable(ctx, []string{"db"}, CreateTableRequest{Name: "t", Schema: sampleSchema()})
	require.NoError(t, err)

	_, err = svc.CommitTable(ctx, []string{"db"}, "t", CommitTableRequest{
		Identifier: &TableIdentifier{Namespace: []string{"db"}, Name: "other"},
		Updates:    []model.TableUpdate{{Action: model.UpdateSetProperties, Updates: map[string]string{"a": "1"}}},
	})
	require.Error(t, err)
	ce, ok := catalogerr.As(err)
	require.True(t, ok)
	assert.Equal(t, catalogerr.BadRequest, ce.Code)
}
