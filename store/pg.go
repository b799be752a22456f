package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GoCodeAlone/nlflow/nlparse"
)

// PGConfig holds PostgreSQL connection configuration.
type PGConfig struct {
	URL             string `yaml:"url" json:"url"`
	MaxConns        int32  `yaml:"max_conns" json:"max_conns"`
	MinConns        int32  `yaml:"min_conns" json:"min_conns"`
	MaxConnIdleTime string `yaml:"max_conn_idle_time" json:"max_conn_idle_time"`
	// Migrate applies the embedded schema migrations on connect.
	Migrate bool `yaml:"migrate" json:"migrate"`
}

// PGStore implements WorkflowStore backed by PostgreSQL. Workflows are
// stored as JSONB alongside the columns used for filtering.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to PostgreSQL and, if cfg.Migrate is set, brings the
// schema up to date.
func NewPGStore(ctx context.Context, cfg PGConfig, logger *slog.Logger) (*PGStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse pg config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnIdleTime != "" {
		d, err := time.ParseDuration(cfg.MaxConnIdleTime)
		if err != nil {
			return nil, fmt.Errorf("parse max_conn_idle_time: %w", err)
		}
		poolCfg.MaxConnIdleTime = d
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}

	if cfg.Migrate {
		if _, err := NewMigrator(pool, logger).Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &PGStore{pool: pool}, nil
}

// NewPGStoreWithPool wraps an existing pool. The caller owns the schema.
func NewPGStoreWithPool(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Pool returns the underlying pgxpool.Pool.
func (s *PGStore) Pool() *pgxpool.Pool { return s.pool }

// Close closes the connection pool.
func (s *PGStore) Close() { s.pool.Close() }

func (s *PGStore) Save(ctx context.Context, r *Record) error {
	if r.Workflow == nil {
		return errors.New("save record: workflow is nil")
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	doc, err := json.Marshal(r.Workflow)
	if err != nil {
		return fmt.Errorf("encode workflow: %w", err)
	}
	apps := r.Workflow.RequiredApps
	if apps == nil {
		apps = []string{}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO parsed_workflows (id, instruction, outcome, name, apps, workflow, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		r.ID, r.Instruction, string(r.Outcome), r.Workflow.Name, apps, doc, r.CreatedAt)
	if err != nil {
		if isDuplicateError(err) {
			return fmt.Errorf("%w: parsed workflow %s", ErrDuplicate, r.ID)
		}
		return fmt.Errorf("insert parsed workflow: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, instruction, outcome, workflow, created_at
		FROM parsed_workflows WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query parsed workflow: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query parsed workflow: %w", err)
		}
		return nil, ErrNotFound
	}
	return scanRecord(rows)
}

func (s *PGStore) List(ctx context.Context, f ListFilter) ([]*Record, error) {
	query, args := buildListQuery(f)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list parsed workflows: %w", err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *PGStore) Count(ctx context.Context, f ListFilter) (int, error) {
	query, args := buildCountQuery(f)
	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count parsed workflows: %w", err)
	}
	return n, nil
}

func (s *PGStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM parsed_workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete parsed workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// listWhere renders the filter part of f as a WHERE clause with $n
// placeholders starting at 1.
func listWhere(f ListFilter) (string, []any) {
	where := ` WHERE 1=1`
	args := []any{}
	if f.Outcome != "" {
		args = append(args, string(f.Outcome))
		where += fmt.Sprintf(` AND outcome = $%d`, len(args))
	}
	if f.App != "" {
		args = append(args, f.App)
		where += fmt.Sprintf(` AND $%d = ANY(apps)`, len(args))
	}
	return where, args
}

func buildListQuery(f ListFilter) (string, []any) {
	where, args := listWhere(f)
	offset := f.Pagination.Offset
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, instruction, outcome, workflow, created_at FROM parsed_workflows` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	return query, append(args, limitOrDefault(f.Pagination), offset)
}

func buildCountQuery(f ListFilter) (string, []any) {
	where, args := listWhere(f)
	return `SELECT count(*) FROM parsed_workflows` + where, args
}

func scanRecord(rows pgx.Rows) (*Record, error) {
	var (
		r       Record
		outcome string
		doc     []byte
	)
	if err := rows.Scan(&r.ID, &r.Instruction, &outcome, &doc, &r.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan parsed workflow: %w", err)
	}
	r.Outcome = nlparse.Outcome(outcome)
	var wf nlparse.ParsedWorkflow
	if err := json.Unmarshal(doc, &wf); err != nil {
		return nil, fmt.Errorf("decode workflow %s: %w", r.ID, err)
	}
	r.Workflow = &wf
	return &r, nil
}

func isDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
