// Package registry owns the live progress trackers, one per generation run.
// The engine itself is single-threaded by contract, so the registry holds one
// lock per run and funnels every mutation through it. It also emits progress
// updates to the notify hub and archives a final report when a run completes.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursekit/genprogress/internal/archive"
	"github.com/coursekit/genprogress/internal/clock/system"
	"github.com/coursekit/genprogress/internal/engine"
	"github.com/coursekit/genprogress/internal/notify"
)

// ErrRunNotFound signals that the referenced run is not being tracked.
var ErrRunNotFound = errors.New("run not found")

// Clock abstracts time.Now for tests.
type Clock interface {
	Now() time.Time
}

// Config wires the registry's collaborators. Emitter, Archive, and Logger are
// optional; NewTracker defaults to engine.New.
type Config struct {
	Emitter    notify.Emitter
	Archive    archive.Store
	Clock      Clock
	Logger     *zap.Logger
	NewTracker func() *engine.Tracker
}

// Registry maps run IDs to their trackers.
type Registry struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*run

	emitter    notify.Emitter
	archive    archive.Store
	clock      Clock
	logger     *zap.Logger
	newTracker func() *engine.Tracker
}

// run pairs one tracker with its serializing lock.
type run struct {
	mu        sync.Mutex
	tracker   *engine.Tracker
	startedAt time.Time
}

// New creates an empty Registry.
func New(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = system.New()
	}
	newTracker := cfg.NewTracker
	if newTracker == nil {
		newTracker = func() *engine.Tracker { return engine.New() }
	}
	return &Registry{
		runs:       make(map[uuid.UUID]*run),
		emitter:    cfg.Emitter,
		archive:    cfg.Archive,
		clock:      clock,
		logger:     logger,
		newTracker: newTracker,
	}
}

// Create starts tracking a new run and returns its identifier.
func (r *Registry) Create(ctx context.Context) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	if err := r.Ensure(ctx, id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Ensure starts tracking the given run if it is not already known. Used by
// ingestion paths where the pipeline names its own run IDs.
func (r *Registry) Ensure(_ context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("run id is required")
	}
	now := r.clock.Now()

	r.mu.Lock()
	_, exists := r.runs[id]
	if !exists {
		r.runs[id] = &run{tracker: r.newTracker(), startedAt: now}
	}
	r.mu.Unlock()

	if !exists {
		r.emit(notify.Update{
			RunID: notify.UUIDToBytes(id),
			TS:    now,
			Kind:  notify.KindRunStart,
		})
		r.logger.Info("tracking new run", zap.Stringer("run_id", id))
	}
	return nil
}

// Apply feeds one pipeline event to the run's tracker and returns the new
// overall fraction.
func (r *Registry) Apply(_ context.Context, id uuid.UUID, ev engine.Event) (float64, error) {
	entry, err := r.lookup(id)
	if err != nil {
		return 0, err
	}
	entry.mu.Lock()
	overall := entry.tracker.Update(ev)
	entry.mu.Unlock()

	r.emit(notify.Update{
		RunID:   notify.UUIDToBytes(id),
		TS:      r.clock.Now(),
		Kind:    notify.KindOverall,
		Phase:   ev.Phase,
		Overall: overall,
	})
	return overall, nil
}

// DeclareTotals records authoritative module/submodule counts for the run.
func (r *Registry) DeclareTotals(_ context.Context, id uuid.UUID, totalModules, totalSubmodules *int) error {
	entry, err := r.lookup(id)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	entry.tracker.DeclareTotals(totalModules, totalSubmodules)
	entry.mu.Unlock()
	return nil
}

// Snapshot copies the run's current state.
func (r *Registry) Snapshot(id uuid.UUID) (engine.Snapshot, error) {
	entry, err := r.lookup(id)
	if err != nil {
		return engine.Snapshot{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.tracker.Snapshot(), nil
}

// runReport is the archived JSON form of a finished run.
type runReport struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Snapshot   engine.Snapshot `json:"snapshot"`
}

// Complete stops tracking the run, emits the final update, and archives a
// report. The final overall is returned.
func (r *Registry) Complete(ctx context.Context, id uuid.UUID) (float64, error) {
	r.mu.Lock()
	entry, ok := r.runs[id]
	if ok {
		delete(r.runs, id)
	}
	r.mu.Unlock()
	if !ok {
		return 0, ErrRunNotFound
	}

	entry.mu.Lock()
	snap := entry.tracker.Snapshot()
	entry.mu.Unlock()

	now := r.clock.Now()
	r.emit(notify.Update{
		RunID:   notify.UUIDToBytes(id),
		TS:      now,
		Kind:    notify.KindRunDone,
		Overall: snap.Overall,
	})

	if r.archive != nil {
		report := runReport{
			RunID:      id.String(),
			StartedAt:  entry.startedAt,
			FinishedAt: now,
			Snapshot:   snap,
		}
		data, err := json.Marshal(report)
		if err != nil {
			return snap.Overall, fmt.Errorf("marshal run report: %w", err)
		}
		path := fmt.Sprintf("runs/%s.json", id)
		if _, err := r.archive.PutObject(ctx, path, "application/json", bytes.NewReader(data)); err != nil {
			// Archival is best-effort; the run is already complete.
			r.logger.Warn("archive run report failed", zap.Stringer("run_id", id), zap.Error(err))
		}
	}
	return snap.Overall, nil
}

// ActiveRuns reports how many runs are currently tracked.
func (r *Registry) ActiveRuns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

func (r *Registry) lookup(id uuid.UUID) (*run, error) {
	r.mu.RLock()
	entry, ok := r.runs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrRunNotFound
	}
	return entry, nil
}

func (r *Registry) emit(u notify.Update) {
	if r.emitter != nil {
		r.emitter.Emit(u)
	}
}
