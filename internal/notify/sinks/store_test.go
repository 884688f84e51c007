package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/coursekit/genprogress/internal/notify"
	"github.com/coursekit/genprogress/internal/store"
)

// TestStoreSinkCollapsesOverallUpdates ensures only the latest overall per run
// is persisted from one batch.
func TestStoreSinkCollapsesOverallUpdates(t *testing.T) {
	t.Parallel()

	repo := &fakeSnapshotRepo{}
	sink := NewStoreSink(repo, nil)
	runUUID := uuid.New()
	runID := notify.UUIDToBytes(runUUID)
	now := time.Now().UTC()

	batch := []notify.Update{
		{RunID: runID, Kind: notify.KindRunStart, TS: now},
		{RunID: runID, Kind: notify.KindOverall, Phase: "search", Overall: 0.10, TS: now.Add(time.Second)},
		{RunID: runID, Kind: notify.KindOverall, Phase: "submodules", Overall: 0.55, TS: now.Add(2 * time.Second)},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Equal(t, []uuid.UUID{runUUID}, repo.starts)
	require.Len(t, repo.overalls, 1)
	require.Equal(t, 0.55, repo.overalls[0].overall)
	require.Equal(t, "submodules", repo.overalls[0].phase)
}

// TestStoreSinkCompletesRuns verifies RUN_DONE supersedes pending overalls.
func TestStoreSinkCompletesRuns(t *testing.T) {
	t.Parallel()

	repo := &fakeSnapshotRepo{}
	sink := NewStoreSink(repo, nil)
	runUUID := uuid.New()
	runID := notify.UUIDToBytes(runUUID)
	now := time.Now().UTC()

	batch := []notify.Update{
		{RunID: runID, Kind: notify.KindOverall, Phase: "final_assembly", Overall: 0.97, TS: now},
		{RunID: runID, Kind: notify.KindRunDone, Overall: 1.0, TS: now.Add(time.Second)},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Empty(t, repo.overalls)
	require.Equal(t, []uuid.UUID{runUUID}, repo.completes)
}

// TestStoreSinkSurfacesRepositoryErrors returns failures to the hub verbatim.
func TestStoreSinkSurfacesRepositoryErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeSnapshotRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	err := sink.Consume(context.Background(), []notify.Update{
		{RunID: notify.UUIDToBytes(uuid.New()), Kind: notify.KindRunStart, TS: time.Now()},
	})
	require.Error(t, err)
}

// TestStoreSinkNilRepositoryIsNoop keeps a partially wired service harmless.
func TestStoreSinkNilRepositoryIsNoop(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(nil, nil)
	require.NoError(t, sink.Consume(context.Background(), []notify.Update{
		{RunID: notify.UUIDToBytes(uuid.New()), Kind: notify.KindRunStart, TS: time.Now()},
	}))
}

type fakeSnapshotRepo struct {
	fail      bool
	starts    []uuid.UUID
	completes []uuid.UUID
	overalls  []overallCall
}

type overallCall struct {
	runID   uuid.UUID
	phase   string
	overall float64
}

func (f *fakeSnapshotRepo) UpsertRunStart(_ context.Context, runID uuid.UUID, _ time.Time) error {
	if f.fail {
		return errors.New("boom")
	}
	f.starts = append(f.starts, runID)
	return nil
}

func (f *fakeSnapshotRepo) UpsertOverall(_ context.Context, runID uuid.UUID, phase string, overall float64, _ time.Time) error {
	if f.fail {
		return errors.New("boom")
	}
	f.overalls = append(f.overalls, overallCall{runID: runID, phase: phase, overall: overall})
	return nil
}

func (f *fakeSnapshotRepo) CompleteRun(_ context.Context, runID uuid.UUID, _ time.Time, _ float64) error {
	if f.fail {
		return errors.New("boom")
	}
	f.completes = append(f.completes, runID)
	return nil
}

func (f *fakeSnapshotRepo) GetRun(context.Context, uuid.UUID) (store.RunRecord, error) {
	return store.RunRecord{}, store.ErrNotFound
}

func (f *fakeSnapshotRepo) ListRuns(context.Context, *bool, int, int) ([]store.RunRecord, error) {
	return nil, nil
}
