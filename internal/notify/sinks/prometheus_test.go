package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/coursekit/genprogress/internal/notify"
)

// TestPrometheusSinkRecordsMetrics ensures counters and the active gauge track
// a run's lifecycle.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := notify.UUIDToBytes(uuid.New())
	now := time.Now().UTC()
	batch := []notify.Update{
		{RunID: runID, Kind: notify.KindRunStart, TS: now},
		{RunID: runID, Kind: notify.KindOverall, Phase: "search", Overall: 0.15, TS: now.Add(time.Second)},
		{RunID: runID, Kind: notify.KindOverall, Phase: "submodules", Overall: 0.65, TS: now.Add(time.Minute)},
		{RunID: runID, Kind: notify.KindRunDone, Overall: 1.0, TS: now.Add(time.Hour)},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.updatesTotal.WithLabelValues("search")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.updatesTotal.WithLabelValues("submodules")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.overallValues, "genprogress_overall_fraction"))
}

// TestPrometheusSinkDeduplicatesStarts keeps the active gauge correct under
// replayed RUN_START updates.
func TestPrometheusSinkDeduplicatesStarts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := notify.UUIDToBytes(uuid.New())
	start := notify.Update{RunID: runID, Kind: notify.KindRunStart, TS: time.Now()}
	require.NoError(t, sink.Consume(context.Background(), []notify.Update{start, start}))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsActive))
}

// TestPrometheusSinkDoubleRegistrationFails surfaces collector conflicts.
func TestPrometheusSinkDoubleRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
