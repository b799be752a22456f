package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockID keys the advisory lock held while migrations run.
const migrationLockID = 7340021

// Migrator applies the embedded SQL migrations for the parsed_workflows
// schema.
type Migrator struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewMigrator creates a new Migrator. A nil logger uses slog.Default().
func NewMigrator(pool *pgxpool.Pool, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{pool: pool, logger: logger}
}

// Migrate applies pending migrations in name order and returns the versions
// it applied. Concurrent runs serialize on an advisory lock and applied
// versions are tracked in schema_migrations.
func (m *Migrator) Migrate(ctx context.Context) ([]string, error) {
	if _, err := m.pool.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	defer func() {
		_, _ = m.pool.Exec(ctx, `SELECT pg_advisory_unlock($1)`, migrationLockID)
	}()

	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return nil, fmt.Errorf("create schema_migrations table: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := pendingMigrations(migrationsFS, applied)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, version := range pending {
		content, err := fs.ReadFile(migrationsFS, "migrations/"+version+".sql")
		if err != nil {
			return done, fmt.Errorf("read migration %s: %w", version, err)
		}
		if err := m.apply(ctx, version, string(content)); err != nil {
			return done, err
		}
		m.logger.Info("Applied migration", "version", version)
		done = append(done, version)
	}
	return done, nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

func (m *Migrator) apply(ctx context.Context, version, sql string) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", version, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, sql); err != nil {
		return fmt.Errorf("execute migration %s: %w", version, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}

// pendingMigrations lists the .sql versions in fsys/migrations that are not
// in applied, sorted by name.
func pendingMigrations(fsys fs.FS, applied map[string]bool) ([]string, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var pending []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version := strings.TrimSuffix(entry.Name(), ".sql")
		if !applied[version] {
			pending = append(pending, version)
		}
	}
	sort.Strings(pending)
	return pending, nil
}
