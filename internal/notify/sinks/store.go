package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursekit/genprogress/internal/notify"
	"github.com/coursekit/genprogress/internal/store"
)

// StoreSink persists progress updates via a store.SnapshotRepository. It
// collapses each run's updates within a batch to the latest overall to reduce
// write amplification.
type StoreSink struct {
	repo   store.SnapshotRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.SnapshotRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards collapsed run progress to the repository. It respects ctx
// deadlines and returns any repository errors verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []notify.Update) error {
	if s == nil || s.repo == nil {
		return nil
	}
	latest := make(map[uuid.UUID]overallDelta)

	for _, u := range batch {
		runID := u.RunUUID()
		switch u.Kind {
		case notify.KindRunStart:
			if err := s.repo.UpsertRunStart(ctx, runID, u.TS); err != nil {
				return fmt.Errorf("upsert run start: %w", err)
			}
		case notify.KindOverall:
			delta := latest[runID]
			if u.Overall >= delta.overall {
				delta.overall = u.Overall
				delta.phase = u.Phase
			}
			if u.TS.After(delta.at) {
				delta.at = u.TS
			}
			delta.seen = true
			latest[runID] = delta
		case notify.KindRunDone:
			delete(latest, runID)
			if err := s.repo.CompleteRun(ctx, runID, u.TS, u.Overall); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		}
	}

	for runID, delta := range latest {
		if !delta.seen {
			continue
		}
		if err := s.repo.UpsertOverall(ctx, runID, delta.phase, delta.overall, delta.at); err != nil {
			return fmt.Errorf("upsert overall: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type overallDelta struct {
	overall float64
	phase   string
	at      time.Time
	seen    bool
}
