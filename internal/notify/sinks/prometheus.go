package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/coursekit/genprogress/internal/notify"
)

// PrometheusSink exports run progress metrics. It owns all collectors for
// runs started/completed/active and per-phase update counts. Run IDs are
// deliberately not used as label values to keep cardinality bounded.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	runsActive    prometheus.Gauge
	updatesTotal  *prometheus.CounterVec
	overallValues prometheus.Histogram

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "genprogress_runs_started_total",
			Help: "Total generation runs that have started.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "genprogress_runs_completed_total",
			Help: "Total generation runs that have completed.",
		}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "genprogress_runs_active",
			Help: "Current number of runs being tracked.",
		}),
		updatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genprogress_updates_total",
			Help: "Progress updates processed, partitioned by event phase.",
		}, []string{"phase"}),
		overallValues: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "genprogress_overall_fraction",
			Help:    "Distribution of exported overall fractions across updates.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.updatesTotal,
		s.overallValues,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the provided batch. It is safe for
// concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []notify.Update) error {
	for _, u := range batch {
		s.consumeUpdate(u)
	}
	return nil
}

func (s *PrometheusSink) consumeUpdate(u notify.Update) {
	switch u.Kind {
	case notify.KindRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(u.RunID) {
			s.runsActive.Inc()
		}
	case notify.KindOverall:
		phase := u.Phase
		if phase == "" {
			phase = "unknown"
		}
		s.updatesTotal.WithLabelValues(phase).Inc()
		s.overallValues.Observe(u.Overall)
	case notify.KindRunDone:
		s.runsCompleted.Inc()
		if s.tracker.complete(u.RunID) {
			s.runsActive.Dec()
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// runTracker deduplicates start/done transitions so the active gauge survives
// replayed updates.
type runTracker struct {
	mu     sync.Mutex
	active map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{active: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; ok {
		return false
	}
	t.active[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; !ok {
		return false
	}
	delete(t.active, id)
	return true
}
