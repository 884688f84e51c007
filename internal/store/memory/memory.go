// Package memory provides an in-memory SnapshotRepository, used by the
// default configuration and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coursekit/genprogress/internal/store"
)

// Repository keeps run records in a mutex-guarded map.
type Repository struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]store.RunRecord
}

// New creates an empty Repository.
func New() *Repository {
	return &Repository{runs: make(map[uuid.UUID]store.RunRecord)}
}

// UpsertRunStart records the run's start; replays keep the original start time.
func (r *Repository) UpsertRunStart(_ context.Context, runID uuid.UUID, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[runID]; ok {
		return nil
	}
	r.runs[runID] = store.RunRecord{
		RunID:     runID,
		StartedAt: startedAt,
		UpdatedAt: startedAt,
	}
	return nil
}

// UpsertOverall raises the stored overall; a lower value only refreshes the
// update timestamp and phase label.
func (r *Repository) UpsertOverall(_ context.Context, runID uuid.UUID, phase string, overall float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.runs[runID]
	if !ok {
		rec = store.RunRecord{RunID: runID, StartedAt: at}
	}
	if overall > rec.Overall {
		rec.Overall = overall
	}
	rec.Phase = phase
	rec.UpdatedAt = at
	r.runs[runID] = rec
	return nil
}

// CompleteRun marks the run done with its final overall.
func (r *Repository) CompleteRun(_ context.Context, runID uuid.UUID, finishedAt time.Time, overall float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.runs[runID]
	if !ok {
		rec = store.RunRecord{RunID: runID, StartedAt: finishedAt}
	}
	if overall > rec.Overall {
		rec.Overall = overall
	}
	rec.UpdatedAt = finishedAt
	rec.FinishedAt = &finishedAt
	rec.Done = true
	r.runs[runID] = rec
	return nil
}

// GetRun loads one record or returns store.ErrNotFound.
func (r *Repository) GetRun(_ context.Context, runID uuid.UUID) (store.RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.runs[runID]
	if !ok {
		return store.RunRecord{}, store.ErrNotFound
	}
	return rec, nil
}

// ListRuns returns records newest first with optional done filtering.
func (r *Repository) ListRuns(_ context.Context, done *bool, limit, offset int) ([]store.RunRecord, error) {
	r.mu.RLock()
	all := make([]store.RunRecord, 0, len(r.runs))
	for _, rec := range r.runs {
		if done != nil && rec.Done != *done {
			continue
		}
		all = append(all, rec)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].StartedAt.After(all[j].StartedAt)
	})
	if offset >= len(all) {
		return []store.RunRecord{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
