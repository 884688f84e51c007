// Package postgres provides a Postgres-backed SnapshotRepository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursekit/genprogress/internal/store"
)

// PgxIface is the subset of pgxpool.Pool the store depends on. pgxmock pools
// satisfy the same interface, which is how the store is unit tested.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// RunStore implements store.SnapshotRepository on the generation_runs table.
type RunStore struct {
	pool PgxIface
}

// NewRunStore connects a pool using the provided config.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for
// testing).
func NewRunStoreWithPool(pool PgxIface) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	s.pool.Close()
}

// UpsertRunStart inserts the run row, keeping the first start time on replay.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	query := `
		INSERT INTO generation_runs (run_id, started_at, updated_at, phase, overall, done)
		VALUES ($1, $2, $2, '', 0, FALSE)
		ON CONFLICT (run_id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, runID, startedAt); err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// UpsertOverall stores the latest overall without ever lowering it.
func (s *RunStore) UpsertOverall(ctx context.Context, runID uuid.UUID, phase string, overall float64, at time.Time) error {
	query := `
		INSERT INTO generation_runs (run_id, started_at, updated_at, phase, overall, done)
		VALUES ($1, $4, $4, $2, $3, FALSE)
		ON CONFLICT (run_id) DO UPDATE
		SET overall = GREATEST(generation_runs.overall, EXCLUDED.overall),
		    phase = EXCLUDED.phase,
		    updated_at = EXCLUDED.updated_at;
	`
	if _, err := s.pool.Exec(ctx, query, runID, phase, overall, at); err != nil {
		return fmt.Errorf("upsert overall: %w", err)
	}
	return nil
}

// CompleteRun marks the run finished with its final overall.
func (s *RunStore) CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, overall float64) error {
	query := `
		UPDATE generation_runs
		SET finished_at = $2,
		    updated_at = $2,
		    overall = GREATEST(overall, $3),
		    done = TRUE
		WHERE run_id = $1;
	`
	if _, err := s.pool.Exec(ctx, query, runID, finishedAt, overall); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// GetRun loads a single record or returns store.ErrNotFound.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.RunRecord, error) {
	query := `
		SELECT run_id, started_at, updated_at, finished_at, phase, overall, done
		FROM generation_runs
		WHERE run_id = $1;
	`
	var rec store.RunRecord
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&rec.RunID,
		&rec.StartedAt,
		&rec.UpdatedAt,
		&rec.FinishedAt,
		&rec.Phase,
		&rec.Overall,
		&rec.Done,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.RunRecord{}, store.ErrNotFound
		}
		return store.RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	return rec, nil
}

// ListRuns returns records newest first with optional done filtering.
func (s *RunStore) ListRuns(ctx context.Context, done *bool, limit, offset int) ([]store.RunRecord, error) {
	query := `
		SELECT run_id, started_at, updated_at, finished_at, phase, overall, done
		FROM generation_runs
		WHERE ($1::boolean IS NULL OR done = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, done, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	records := make([]store.RunRecord, 0, limit)
	for rows.Next() {
		var rec store.RunRecord
		if err := rows.Scan(
			&rec.RunID,
			&rec.StartedAt,
			&rec.UpdatedAt,
			&rec.FinishedAt,
			&rec.Phase,
			&rec.Overall,
			&rec.Done,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return records, nil
}
