package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/icebergrest/catalog/internal/catalog/catalogerr"
	"github.com/icebergrest/catalog/internal/metrics"
)

const uniqueViolation = "23505"

// PostgresStore is the Store backed by the namespaces/tables relations
// described in the catalog's recommended minimum schema: a pgxpool
// handle plus a metrics.Recorder that times every query except those
// inside RenameTable's transaction, which are not recorded.
type PostgresStore struct {
	db       *pgxpool.Pool
	recorder metrics.Recorder
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool, recorder metrics.Recorder) *PostgresStore {
	return &PostgresStore{db: db, recorder: recorder}
}

func (s *PostgresStore) GetNamespace(ctx context.Context, levels []string) (map[string]string, error) {
	start := time.Now()
	var propsJSON []byte
	err := s.db.QueryRow(ctx,
		`SELECT properties FROM namespaces WHERE levels = $1`, levels,
	).Scan(&propsJSON)
	s.recorder.RecordDBQuery(ctx, "namespace_get", time.Since(start), err == nil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalogerr.NewNoSuchNamespace(levels)
		}
		return nil, catalogerr.Wrap(fmt.Errorf("getting namespace %v: %w", levels, err))
	}
	props := map[string]string{}
	if len(propsJSON) > 0 {
		if err := json.Unmarshal(propsJSON, &props); err != nil {
			return nil, catalogerr.Wrap(fmt.Errorf("decoding namespace properties: %w", err))
		}
	}
	return props, nil
}

func (s *PostgresStore) NamespaceExists(ctx context.Context, levels []string) (bool, error) {
	start := time.Now()
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM namespaces WHERE levels = $1)`, levels,
	).Scan(&exists)
	s.recorder.RecordDBQuery(ctx, "namespace_exists", time.Since(start), err == nil)
	if err != nil {
		return false, catalogerr.Wrap(fmt.Errorf("checking namespace existence %v: %w", levels, err))
	}
	return exists, nil
}

func (s *PostgresStore) ListNamespaces(ctx context.Context, parent []string) ([][]string, error) {
	start := time.Now()
	rows, err := s.db.Query(ctx, `SELECT levels FROM namespaces`)
	s.recorder.RecordDBQuery(ctx, "namespace_list", time.Since(start), err == nil)
	if err != nil {
		return nil, catalogerr.Wrap(fmt.Errorf("listing namespaces: %w", err))
	}
	defer rows.Close()

	var all [][]string
	for rows.Next() {
		var levels []string
		if err := rows.Scan(&levels); err != nil {
			return nil, catalogerr.Wrap(fmt.Errorf("scanning namespace row: %w", err))
		}
		all = append(all, levels)
	}
	if err := rows.Err(); err != nil {
		return nil, catalogerr.Wrap(fmt.Errorf("iterating namespace rows: %w", err))
	}

	if len(parent) == 0 {
		return all, nil
	}

	var children [][]string
	for _, levels := range all {
		if len(levels) != len(parent)+1 {
			continue
		}
		match := true
		for i, label := range parent {
			if levels[i] != label {
				match = false
				break
			}
		}
		if match {
			children = append(children, levels)
		}
	}
	return children, nil
}

func (s *PostgresStore) CreateNamespace(ctx context.Context, levels []string, properties map[string]string) error {
	start := time.Now()
	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return catalogerr.Wrap(fmt.Errorf("marshaling namespace properties: %w", err))
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO namespaces (levels, properties) VALUES ($1, $2)`,
		levels, propsJSON,
	)
	success := err == nil
	s.recorder.RecordDBQuery(ctx, "namespace_create", time.Since(start), success)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return catalogerr.NewNamespaceAlreadyExists(levels)
		}
		return catalogerr.Wrap(fmt.Errorf("creating namespace %v: %w", levels, err))
	}
	return nil
}

func (s *PostgresStore) UpdateNamespaceProperties(ctx context.Context, levels []string, updates map[string]string, removals []string) (PropertyUpdateResult, error) {
	current, err := s.GetNamespace(ctx, levels)
	if err != nil {
		return PropertyUpdateResult{}, err
	}

	result := PropertyUpdateResult{}
	for k, v := range updates {
		current[k] = v
		result.Updated = append(result.Updated, k)
	}
	for _, k := range removals {
		if _, ok := current[k]; ok {
			delete(current, k)
			result.Removed = append(result.Removed, k)
		} else {
			result.Missing = append(result.Missing, k)
		}
	}

	propsJSON, err := json.Marshal(current)
	if err != nil {
		return PropertyUpdateResult{}, catalogerr.Wrap(fmt.Errorf("marshaling namespace properties: %w", err))
	}

	start := time.Now()
	tag, err := s.db.Exec(ctx,
		`UPDATE namespaces SET properties = $2 WHERE levels = $1`,
		levels, propsJSON,
	)
	success := err == nil
	s.recorder.RecordDBQuery(ctx, "namespace_update_properties", time.Since(start), success)
	if err != nil {
		return PropertyUpdateResult{}, catalogerr.Wrap(fmt.Errorf("updating namespace properties %v: %w", levels, err))
	}
	if tag.RowsAffected() == 0 {
		return PropertyUpdateResult{}, catalogerr.NewNoSuchNamespace(levels)
	}
	return result, nil
}

func (s *PostgresStore) DropNamespace(ctx context.Context, levels []string) error {
	var tableCount int
	start := time.Now()
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM tables t JOIN namespaces n ON t.namespace_id = n.id WHERE n.levels = $1`,
		levels,
	).Scan(&tableCount)
	s.recorder.RecordDBQuery(ctx, "namespace_table_count", time.Since(start), err == nil)
	if err != nil {
		return catalogerr.Wrap(fmt.Errorf("counting tables in namespace %v: %w", levels, err))
	}
	if tableCount > 0 {
		return catalogerr.NewValidation("namespace %v is not empty", levels)
	}

	start = time.Now()
	tag, err := s.db.Exec(ctx, `DELETE FROM namespaces WHERE levels = $1`, levels)
	s.recorder.RecordDBQuery(ctx, "namespace_drop", time.Since(start), err == nil)
	if err != nil {
		return catalogerr.Wrap(fmt.Errorf("dropping namespace %v: %w", levels, err))
	}
	if tag.RowsAffected() == 0 {
		return catalogerr.NewNoSuchNamespace(levels)
	}
	return nil
}

func (s *PostgresStore) GetTable(ctx context.Context, ns []string, name string) (*TableRow, error) {
	start := time.Now()
	var location string
	var propsJSON []byte
	err := s.db.QueryRow(ctx,
		`SELECT t.metadata_location, t.properties
		 FROM tables t JOIN namespaces n ON t.namespace_id = n.id
		 WHERE n.levels = $1 AND t.name = $2`,
		ns, name,
	).Scan(&location, &propsJSON)
	s.recorder.RecordDBQuery(ctx, "table_get", time.Since(start), err == nil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalogerr.NewNoSuchTable(ns, name)
		}
		return nil, catalogerr.Wrap(fmt.Errorf("getting table %v.%s: %w", ns, name, err))
	}
	props := map[string]string{}
	if len(propsJSON) > 0 {
		if err := json.Unmarshal(propsJSON, &props); err != nil {
			return nil, catalogerr.Wrap(fmt.Errorf("decoding table properties: %w", err))
		}
	}
	return &TableRow{Namespace: ns, Name: name, MetadataLocation: location, Properties: props}, nil
}

func (s *PostgresStore) ListTables(ctx context.Context, ns []string) ([]string, error) {
	start := time.Now()
	rows, err := s.db.Query(ctx,
		`SELECT t.name FROM tables t JOIN namespaces n ON t.namespace_id = n.id WHERE n.levels = $1 ORDER BY t.name`,
		ns,
	)
	s.recorder.RecordDBQuery(ctx, "table_list", time.Since(start), err == nil)
	if err != nil {
		return nil, catalogerr.Wrap(fmt.Errorf("listing tables in %v: %w", ns, err))
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, catalogerr.Wrap(fmt.Errorf("scanning table row: %w", err))
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *PostgresStore) TableExists(ctx context.Context, ns []string, name string) (bool, error) {
	start := time.Now()
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM tables t JOIN namespaces n ON t.namespace_id = n.id
			WHERE n.levels = $1 AND t.name = $2
		)`, ns, name,
	).Scan(&exists)
	s.recorder.RecordDBQuery(ctx, "table_exists", time.Since(start), err == nil)
	if err != nil {
		return false, catalogerr.Wrap(fmt.Errorf("checking table existence %v.%s: %w", ns, name, err))
	}
	return exists, nil
}

func (s *PostgresStore) CreateTable(ctx context.Context, ns []string, name, metadataLocation string, properties map[string]string) error {
	var nsID int64
	start := time.Now()
	err := s.db.QueryRow(ctx, `SELECT id FROM namespaces WHERE levels = $1`, ns).Scan(&nsID)
	s.recorder.RecordDBQuery(ctx, "namespace_lookup_for_create_table", time.Since(start), err == nil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalogerr.NewNoSuchNamespace(ns)
		}
		return catalogerr.Wrap(fmt.Errorf("looking up namespace %v: %w", ns, err))
	}

	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return catalogerr.Wrap(fmt.Errorf("marshaling table properties: %w", err))
	}

	start = time.Now()
	_, err = s.db.Exec(ctx,
		`INSERT INTO tables (namespace_id, name, metadata_location, properties) VALUES ($1, $2, $3, $4)`,
		nsID, name, metadataLocation, propsJSON,
	)
	success := err == nil
	s.recorder.RecordDBQuery(ctx, "table_create", time.Since(start), success)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return catalogerr.NewTableAlreadyExists(ns, name)
		}
		return catalogerr.Wrap(fmt.Errorf("creating table %v.%s: %w", ns, name, err))
	}
	return nil
}

func (s *PostgresStore) RenameTable(ctx context.Context, src, dst TableIdentifier) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return catalogerr.Wrap(fmt.Errorf("beginning rename transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	var srcNsID int64
	var location string
	var propsJSON []byte
	err = tx.QueryRow(ctx,
		`SELECT t.namespace_id, t.metadata_location, t.properties
		 FROM tables t JOIN namespaces n ON t.namespace_id = n.id
		 WHERE n.levels = $1 AND t.name = $2`,
		src.Namespace, src.Name,
	).Scan(&srcNsID, &location, &propsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalogerr.NewNoSuchTable(src.Namespace, src.Name)
		}
		return catalogerr.Wrap(fmt.Errorf("looking up rename source %v.%s: %w", src.Namespace, src.Name, err))
	}

	var dstNsID int64
	err = tx.QueryRow(ctx, `SELECT id FROM namespaces WHERE levels = $1`, dst.Namespace).Scan(&dstNsID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalogerr.NewNoSuchNamespace(dst.Namespace)
		}
		return catalogerr.Wrap(fmt.Errorf("looking up rename destination namespace %v: %w", dst.Namespace, err))
	}

	var dstExists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tables WHERE namespace_id = $1 AND name = $2)`,
		dstNsID, dst.Name,
	).Scan(&dstExists)
	if err != nil {
		return catalogerr.Wrap(fmt.Errorf("checking rename destination %v.%s: %w", dst.Namespace, dst.Name, err))
	}
	if dstExists {
		return catalogerr.NewTableAlreadyExists(dst.Namespace, dst.Name)
	}

	_, err = tx.Exec(ctx,
		`UPDATE tables SET namespace_id = $1, name = $2 WHERE namespace_id = $3 AND name = $4`,
		dstNsID, dst.Name, srcNsID, src.Name,
	)
	if err != nil {
		return catalogerr.Wrap(fmt.Errorf("renaming table %v.%s to %v.%s: %w", src.Namespace, src.Name, dst.Namespace, dst.Name, err))
	}

	if err := tx.Commit(ctx); err != nil {
		return catalogerr.Wrap(fmt.Errorf("committing rename: %w", err))
	}
	return nil
}

// CASUpdateMetadataLocation is the optimistic-lock primitive: it succeeds
// only if the current row's metadata_location equals expectedLocation.
func (s *PostgresStore) CASUpdateMetadataLocation(ctx context.Context, ns []string, name, expectedLocation, newLocation string) error {
	start := time.Now()
	tag, err := s.db.Exec(ctx,
		`UPDATE tables t SET metadata_location = $1
		 FROM namespaces n
		 WHERE t.namespace_id = n.id AND n.levels = $2 AND t.name = $3 AND t.metadata_location = $4`,
		newLocation, ns, name, expectedLocation,
	)
	success := err == nil
	s.recorder.RecordDBQuery(ctx, "table_cas_update_metadata_location", time.Since(start), success)
	if err != nil {
		return catalogerr.NewCommitFailed("updating metadata pointer for %v.%s from %s to %s: %v", ns, name, expectedLocation, newLocation, err)
	}
	if tag.RowsAffected() != 1 {
		return catalogerr.NewCommitFailed("concurrent commit: expected metadata_location %s for %v.%s no longer current (attempted new location %s)", expectedLocation, ns, name, newLocation)
	}
	return nil
}

func (s *PostgresStore) DropTable(ctx context.Context, ns []string, name string) error {
	start := time.Now()
	tag, err := s.db.Exec(ctx,
		`DELETE FROM tables t USING namespaces n WHERE t.namespace_id = n.id AND n.levels = $1 AND t.name = $2`,
		ns, name,
	)
	s.recorder.RecordDBQuery(ctx, "table_drop", time.Since(start), err == nil)
	if err != nil {
		return catalogerr.Wrap(fmt.Errorf("dropping table %v.%s: %w", ns, name, err))
	}
	if tag.RowsAffected() == 0 {
		return catalogerr.NewNoSuchTable(ns, name)
	}
	return nil
}
