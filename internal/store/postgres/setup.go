package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SchemaManager brings the catalog's namespaces/tables relations up to
// date by applying any embedded migration the schema_migrations table
// doesn't yet record as applied.
type SchemaManager struct {
	db *pgxpool.Pool
}

func NewSetup(db *pgxpool.Pool) *SchemaManager {
	return &SchemaManager{db: db}
}

// Initialize applies every pending catalog schema migration in order,
// each in its own transaction, and logs how many it actually ran.
func (s *SchemaManager) Initialize(ctx context.Context) error {
	migrations, err := s.loadMigrations()
	if err != nil {
		return fmt.Errorf("loading catalog schema migrations: %w", err)
	}

	if err := s.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("creating schema_migrations tracking table: %w", err)
	}

	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("reading applied catalog schema versions: %w", err)
	}

	var ran int
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying catalog schema migration %s: %w", m.Version, err)
		}
		ran++
	}

	log.Info().Int("applied", ran).Int("total", len(migrations)).Msg("catalog schema up to date")
	return nil
}

type migration struct {
	Version string
	UpSQL   string
}

func (s *SchemaManager) loadMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, err
	}

	var migrations []migration
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, path.Join("migrations", entry.Name()))
		if err != nil {
			return nil, err
		}

		version := strings.TrimSuffix(entry.Name(), ".up.sql")
		migrations = append(migrations, migration{
			Version: version,
			UpSQL:   string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

func (s *SchemaManager) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (s *SchemaManager) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return applied, nil
}

func (s *SchemaManager) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	log.Info().Str("version", m.Version).Msg("applying catalog schema migration")

	if _, err := tx.Exec(ctx, m.UpSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version) VALUES ($1)",
		m.Version); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
