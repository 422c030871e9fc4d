// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RunStoreConfig controls the Postgres connection pool used for run records.
type RunStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// RunStore persists archive runs into Postgres.
type RunStore struct {
	pool  pool
	table string
	now   func() time.Time
}

// NewRunStore creates a Postgres-backed RunStore using the provided config.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRunStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool, table string) (*RunStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "archive_runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunStore{
		pool:  p,
		table: table,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// EnsureSchema creates the runs table when it does not exist yet.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	prefix       TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	state        TEXT NOT NULL DEFAULT '',
	index_url    TEXT NOT NULL DEFAULT '',
	error_text   TEXT NOT NULL DEFAULT '',
	discovered   INTEGER NOT NULL DEFAULT 0,
	stored       INTEGER NOT NULL DEFAULT 0,
	skipped      INTEGER NOT NULL DEFAULT 0,
	manifest     JSONB NOT NULL DEFAULT '[]',
	submitted_at TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	finished_at  TIMESTAMPTZ
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateRun inserts a new run row.
func (s *RunStore) CreateRun(ctx context.Context, run archive.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	manifestJSON, err := marshalManifest(run.Manifest)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	url,
	prefix,
	status,
	state,
	manifest,
	submitted_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`, s.table)

	args := []any{
		run.ID,
		run.URL,
		run.Prefix,
		string(run.Status),
		string(run.State),
		manifestJSON,
		run.Submitted,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRun writes the mutable fields of a run. started_at and finished_at are
// set once, on the first running and terminal transitions.
func (s *RunStore) UpdateRun(ctx context.Context, run archive.Run) error {
	manifestJSON, err := marshalManifest(run.Manifest)
	if err != nil {
		return err
	}
	now := s.now()
	var started, finished *time.Time
	if run.Status == archive.RunStatusRunning {
		started = &now
	}
	if run.Status.IsTerminal() {
		finished = &now
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	state = $3,
	index_url = $4,
	error_text = $5,
	discovered = $6,
	stored = $7,
	skipped = $8,
	manifest = $9,
	started_at = COALESCE(started_at, $10),
	finished_at = COALESCE(finished_at, $11)
WHERE id = $1`, s.table)

	args := []any{
		run.ID,
		string(run.Status),
		string(run.State),
		run.IndexURL,
		run.ErrorText,
		run.Counters.Discovered,
		run.Counters.Stored,
		run.Counters.Skipped,
		manifestJSON,
		started,
		finished,
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", run.ID, archive.ErrNotFound)
	}
	return nil
}

// GetRun loads a run by ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (archive.Run, error) {
	query := fmt.Sprintf(`
SELECT
	id,
	url,
	prefix,
	status,
	state,
	index_url,
	error_text,
	discovered,
	stored,
	skipped,
	manifest,
	submitted_at,
	started_at,
	finished_at
FROM %s WHERE id = $1`, s.table)

	var (
		run           archive.Run
		status, state string
		manifestJSON  []byte
	)
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.URL,
		&run.Prefix,
		&status,
		&state,
		&run.IndexURL,
		&run.ErrorText,
		&run.Counters.Discovered,
		&run.Counters.Stored,
		&run.Counters.Skipped,
		&manifestJSON,
		&run.Submitted,
		&run.Started,
		&run.Finished,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return archive.Run{}, fmt.Errorf("run %s: %w", runID, archive.ErrNotFound)
	}
	if err != nil {
		return archive.Run{}, fmt.Errorf("select run: %w", err)
	}
	run.Status = archive.RunStatus(status)
	run.State = archive.State(state)
	if len(manifestJSON) > 0 {
		if err := json.Unmarshal(manifestJSON, &run.Manifest); err != nil {
			return archive.Run{}, fmt.Errorf("decode manifest: %w", err)
		}
	}
	return run, nil
}

func marshalManifest(m archive.Manifest) ([]byte, error) {
	if m == nil {
		m = archive.Manifest{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return data, nil
}
