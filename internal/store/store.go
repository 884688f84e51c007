package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunRecord models one generation run's persisted progress.
type RunRecord struct {
	// RunID is the generation run identifier shared with the pipeline.
	RunID uuid.UUID
	// StartedAt captures when the run was first recorded.
	StartedAt time.Time
	// UpdatedAt is the timestamp of the most recent overall update.
	UpdatedAt time.Time
	// FinishedAt is nil until the run completes.
	FinishedAt *time.Time
	// Phase names the event phase that produced the latest update.
	Phase string
	// Overall is the latest exported completion fraction.
	Overall float64
	// Done reports whether the run has completed.
	Done bool
}

// SnapshotRepository persists incremental run progress.
type SnapshotRepository interface {
	// UpsertRunStart inserts (or idempotently keeps) the run's start record.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	// UpsertOverall records the latest overall fraction; implementations must
	// never lower a stored overall.
	UpsertOverall(ctx context.Context, runID uuid.UUID, phase string, overall float64, at time.Time) error
	// CompleteRun marks the run finished with its final overall.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, overall float64) error

	// GetRun loads a single run record or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (RunRecord, error)
	// ListRuns returns records filtered by optional done state, newest first.
	ListRuns(ctx context.Context, done *bool, limit, offset int) ([]RunRecord, error)
}
