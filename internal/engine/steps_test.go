package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestStepForPhaseMapping pins the raw phase name to canonical step mapping.
func TestStepForPhaseMapping(t *testing.T) {
	t.Parallel()

	cases := map[string]Step{
		"submodule_research":  StepResearch,
		"content_development": StepContent,
		"content_evaluation":  StepContentRefinement,
		"content_refinement":  StepContentRefinement,
		"content_enhancement": StepContentRefinement,
		"quiz_generation":     StepQuiz,
	}
	for phase, want := range cases {
		got, ok := stepForPhase(phase)
		require.True(t, ok, "phase %q should resolve", phase)
		require.Equal(t, want, got)
	}

	for _, phase := range []string{"search_queries", "modules", "submodules", ""} {
		_, ok := stepForPhase(phase)
		require.False(t, ok, "phase %q should not resolve to a step", phase)
	}
}

// TestSubmoduleScalarWeighting verifies the weighted sum and its 1.0 cap.
func TestSubmoduleScalarWeighting(t *testing.T) {
	t.Parallel()

	weights := DefaultStepWeights()
	st := newSubmoduleState()
	require.Equal(t, 0.0, st.scalar(weights))

	st.raise(StepResearch, 1.0)
	require.InDelta(t, 0.28, st.scalar(weights), 1e-9)

	st.raise(StepContent, 0.5)
	require.InDelta(t, 0.53, st.scalar(weights), 1e-9)

	for _, step := range canonicalSteps {
		st.raise(step, 1.0)
	}
	require.Equal(t, 1.0, st.scalar(weights))
}

// TestSubmoduleStepMaxSemantics ensures a stale lower value cannot overwrite
// recorded progress.
func TestSubmoduleStepMaxSemantics(t *testing.T) {
	t.Parallel()

	st := newSubmoduleState()
	st.raise(StepContent, 0.8)
	st.raise(StepContent, 0.3)
	require.Equal(t, 0.8, st.steps[StepContent])
}

// TestSubmoduleAveragingWithDeclaredTotal reproduces the half-done run: one of
// two declared submodules completes every step.
func TestSubmoduleAveragingWithDeclaredTotal(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.DeclareTotals(nil, intPtr(2))

	for _, phase := range []string{"submodule_research", "content_development", "content_refinement", "quiz_generation"} {
		tr.Update(Event{Phase: phase, Action: ActionCompleted, Preview: stepPreview(1, 1)})
	}

	snap := tr.Snapshot()
	require.InDelta(t, 0.5, snap.Phases[PhaseSubmodules], 1e-9)
	require.InDelta(t, 1.0, snap.Submodules[NewSubmoduleKey(1, 1)], 1e-9)
	// Submodules occupy [0.40, 0.90]; half of them done lands mid-range.
	require.InDelta(t, 0.65, tr.Overall(), 1e-9)
}

// TestSubmoduleAveragingFallsBackToDiscoveredCount covers the denominator when
// no total was ever declared.
func TestSubmoduleAveragingFallsBackToDiscoveredCount(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.Update(Event{Phase: "content_development", Action: ActionCompleted, Preview: stepPreview(1, 1)})
	require.InDelta(t, 0.50, tr.Snapshot().Phases[PhaseSubmodules], 1e-9)

	tr.Update(Event{Phase: "content_development", Action: ActionStarted, Preview: stepPreview(1, 2)})
	// Two discovered submodules now share the denominator; the phase keeps its
	// running maximum rather than halving.
	require.InDelta(t, 0.50, tr.Snapshot().Phases[PhaseSubmodules], 1e-9)
	require.Equal(t, 2, tr.Snapshot().TotalSubmodules)
}

// TestUnattributedStepDropped ensures step events without a module/submodule
// pair create no state.
func TestUnattributedStepDropped(t *testing.T) {
	t.Parallel()

	tr := New()
	events := []Event{
		{Phase: "content_development", Progress: fraction(0.7)},
		{Phase: "content_development", Progress: fraction(0.7), Preview: &Preview{Type: "submodule_progress"}},
		{Phase: "content_development", Progress: fraction(0.7), Preview: &Preview{
			Type: "submodule_progress",
			Data: []byte(`{"module_id":1}`),
		}},
		{Phase: "content_development", Progress: fraction(0.7), Preview: &Preview{
			Type: "submodule_progress",
			Data: []byte(`{"module_id":"one","submodule_id":2}`),
		}},
	}
	for _, ev := range events {
		require.Equal(t, 0.0, tr.Update(ev))
	}
	snap := tr.Snapshot()
	require.Empty(t, snap.Submodules)
	require.Equal(t, 0, snap.TotalSubmodules)
	require.NotContains(t, snap.Phases, PhaseSubmodules)
}

// TestUnattributedStepLeavesNeighborsAlone verifies a dropped event cannot
// perturb an existing submodule's state.
func TestUnattributedStepLeavesNeighborsAlone(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.Update(Event{Phase: "content_development", Progress: fraction(0.4), Preview: stepPreview(3, 7)})
	before := tr.Snapshot()

	tr.Update(Event{Phase: "content_development", Progress: fraction(0.9)})
	require.Equal(t, before, tr.Snapshot())
}
