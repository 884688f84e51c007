package registry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/coursekit/genprogress/internal/archive"
	"github.com/coursekit/genprogress/internal/engine"
	"github.com/coursekit/genprogress/internal/notify"
)

type captureEmitter struct {
	mu      sync.Mutex
	updates []notify.Update
}

func (e *captureEmitter) Emit(u notify.Update) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updates = append(e.updates, u)
}

func (e *captureEmitter) all() []notify.Update {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]notify.Update, len(e.updates))
	copy(out, e.updates)
	return out
}

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time {
	return c.at
}

func fraction(v float64) *float64 {
	return &v
}

func TestCreateEmitsRunStart(t *testing.T) {
	emitter := &captureEmitter{}
	reg := New(Config{Emitter: emitter})

	id, err := reg.Create(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)
	require.Equal(t, 1, reg.ActiveRuns())

	updates := emitter.all()
	require.Len(t, updates, 1)
	require.Equal(t, notify.KindRunStart, updates[0].Kind)
	require.Equal(t, id, updates[0].RunUUID())
}

func TestEnsureIsIdempotent(t *testing.T) {
	emitter := &captureEmitter{}
	reg := New(Config{Emitter: emitter})
	id := uuid.New()

	require.NoError(t, reg.Ensure(context.Background(), id))
	require.NoError(t, reg.Ensure(context.Background(), id))

	require.Equal(t, 1, reg.ActiveRuns())
	require.Len(t, emitter.all(), 1)
}

func TestEnsureRejectsNilID(t *testing.T) {
	reg := New(Config{})
	require.Error(t, reg.Ensure(context.Background(), uuid.Nil))
}

func TestApplyUpdatesTrackerAndEmits(t *testing.T) {
	emitter := &captureEmitter{}
	reg := New(Config{Emitter: emitter})

	id, err := reg.Create(context.Background())
	require.NoError(t, err)

	overall, err := reg.Apply(context.Background(), id, engine.Event{
		Phase:    "final_assembly",
		Progress: fraction(0),
	})
	require.NoError(t, err)
	require.InDelta(t, 0.95, overall, 1e-9)

	updates := emitter.all()
	require.Len(t, updates, 2)
	require.Equal(t, notify.KindOverall, updates[1].Kind)
	require.Equal(t, "final_assembly", updates[1].Phase)
	require.InDelta(t, 0.95, updates[1].Overall, 1e-9)
}

func TestApplyUnknownRun(t *testing.T) {
	reg := New(Config{})
	_, err := reg.Apply(context.Background(), uuid.New(), engine.Event{})
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestDeclareTotalsReachesTracker(t *testing.T) {
	reg := New(Config{})
	id, err := reg.Create(context.Background())
	require.NoError(t, err)

	three := 3
	require.NoError(t, reg.DeclareTotals(context.Background(), id, nil, &three))

	snap, err := reg.Snapshot(id)
	require.NoError(t, err)
	require.Equal(t, 3, snap.TotalSubmodules)
}

func TestSnapshotUnknownRun(t *testing.T) {
	reg := New(Config{})
	_, err := reg.Snapshot(uuid.New())
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestCompleteEmitsRunDoneAndArchivesReport(t *testing.T) {
	emitter := &captureEmitter{}
	blobs := archive.NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	reg := New(Config{Emitter: emitter, Archive: blobs, Clock: fixedClock{at: now}})

	id, err := reg.Create(context.Background())
	require.NoError(t, err)

	_, err = reg.Apply(context.Background(), id, engine.Event{
		Phase:  "initialization",
		Action: engine.ActionCompleted,
	})
	require.NoError(t, err)

	overall, err := reg.Complete(context.Background(), id)
	require.NoError(t, err)
	require.InDelta(t, 0.05, overall, 1e-9)
	require.Equal(t, 0, reg.ActiveRuns())

	updates := emitter.all()
	require.Equal(t, notify.KindRunDone, updates[len(updates)-1].Kind)

	data, ok := blobs.Object("runs/" + id.String() + ".json")
	require.True(t, ok)

	var report runReport
	require.NoError(t, json.Unmarshal(data, &report))
	require.Equal(t, id.String(), report.RunID)
	require.Equal(t, now, report.StartedAt)
	require.Equal(t, now, report.FinishedAt)
	require.InDelta(t, 0.05, report.Snapshot.Overall, 1e-9)
}

func TestCompleteUnknownRun(t *testing.T) {
	reg := New(Config{})
	_, err := reg.Complete(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestCompleteWithoutArchiveStore(t *testing.T) {
	reg := New(Config{})
	id, err := reg.Create(context.Background())
	require.NoError(t, err)

	_, err = reg.Complete(context.Background(), id)
	require.NoError(t, err)
}

func TestConcurrentAppliesStayMonotonic(t *testing.T) {
	reg := New(Config{})
	id, err := reg.Create(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(step int) {
			defer wg.Done()
			p := float64(step) / 10
			_, applyErr := reg.Apply(context.Background(), id, engine.Event{
				Phase:    "initialization",
				Progress: &p,
			})
			require.NoError(t, applyErr)
		}(i)
	}
	wg.Wait()

	snap, err := reg.Snapshot(id)
	require.NoError(t, err)
	require.InDelta(t, 0.7, snap.Phases["initialization"], 1e-9)
}
