package engine

import (
	"encoding/json"
	"strings"
)

// Raw sub-phase names that compose into a single table entry.
const (
	subPhaseSearchQueries      = "search_queries"
	subPhaseWebSearches        = "web_searches"
	subPhaseResearchEval       = "research_evaluation"
	subPhaseQueryRefinement    = "query_refinement"
	subPhaseRefinementSearches = "refinement_searches"
)

// sufficientMarker short-circuits research evaluation: once the pipeline judges
// the research adequate, the phase completes without further refinement.
const sufficientMarker = "deemed sufficient"

// defaultMidpoint stands in for an omitted raw fraction mid-stage, avoiding a
// visible stall at 0% without faking 100%.
const defaultMidpoint = 0.5

// Tracker aggregates pipeline events for one generation run into a single
// completion fraction. It is not safe for concurrent use; callers that feed a
// run from multiple goroutines must hold one lock per Tracker.
type Tracker struct {
	table   Table
	weights map[Step]float64

	phases     map[Phase]float64
	submodules map[SubmoduleKey]*submoduleState

	totalModules       int
	totalSubmodules    int
	modulesDeclared    bool
	submodulesDeclared bool

	overall float64
}

// Option customizes a Tracker at construction time.
type Option func(*Tracker)

// WithTable replaces the default phase range table.
func WithTable(table Table) Option {
	return func(t *Tracker) { t.table = table }
}

// WithStepWeights replaces the default submodule step weights.
func WithStepWeights(weights map[Step]float64) Option {
	return func(t *Tracker) {
		w := make(map[Step]float64, len(weights))
		for step, v := range weights {
			w[step] = v
		}
		t.weights = w
	}
}

// New builds a Tracker scoped to exactly one generation run.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		table:      DefaultTable(),
		weights:    DefaultStepWeights(),
		phases:     make(map[Phase]float64),
		submodules: make(map[SubmoduleKey]*submoduleState),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Update consumes one pipeline event and returns the new overall fraction.
// The returned value never decreases across calls on the same Tracker, no
// matter how events are ordered, duplicated, or malformed.
func (t *Tracker) Update(ev Event) float64 {
	t.discoverTotals(ev.Preview)

	switch ev.Phase {
	case subPhaseSearchQueries:
		t.composeSearch(0.0, 0.3, ev)
	case subPhaseWebSearches:
		t.composeSearch(0.3, 0.7, ev)
	case subPhaseResearchEval:
		t.composeResearchEval(0.00, 0.33, ev)
	case subPhaseQueryRefinement:
		t.composeResearchEval(0.33, 0.33, ev)
	case subPhaseRefinementSearches:
		t.composeResearchEval(0.66, 0.34, ev)
	case string(PhaseInitialization):
		t.raisePhase(PhaseInitialization, normalizeProgress(ev.Progress, ev.Action))
	case "modules", string(PhaseModuleCreation):
		t.raisePhase(PhaseModuleCreation, normalizeProgress(ev.Progress, ev.Action))
	case string(PhaseSubmodulePlanning):
		t.raisePhase(PhaseSubmodulePlanning, normalizeProgress(ev.Progress, ev.Action))
	case string(PhaseTopicResources):
		t.raisePhase(PhaseTopicResources, normalizeProgress(ev.Progress, ev.Action))
	case string(PhaseModuleResources):
		t.raisePhase(PhaseModuleResources, normalizeProgress(ev.Progress, ev.Action))
	case string(PhaseFinalAssembly):
		t.raisePhase(PhaseFinalAssembly, normalizeProgress(ev.Progress, ev.Action))
	default:
		if step, ok := stepForPhase(ev.Phase); ok {
			t.updateStep(step, ev)
		}
		// Anything else contributes nothing.
	}

	return t.recomputeOverall()
}

// DeclareTotals records authoritative module/submodule counts. Either
// argument may be nil to leave that total untouched. Negative inputs are
// floored to zero. A declared total overrides any discovered estimate but
// never shrinks below a previously declared value.
func (t *Tracker) DeclareTotals(totalModules, totalSubmodules *int) {
	if totalModules != nil {
		v := max(*totalModules, 0)
		if !t.modulesDeclared || v > t.totalModules {
			t.totalModules = v
		}
		t.modulesDeclared = true
	}
	if totalSubmodules != nil {
		v := max(*totalSubmodules, 0)
		if !t.submodulesDeclared || v > t.totalSubmodules {
			t.totalSubmodules = v
		}
		t.submodulesDeclared = true
		t.recomputeSubmodulesPhase()
	}
}

// Overall returns the last value computed, without consuming an event.
func (t *Tracker) Overall() float64 {
	return t.overall
}

// normalizeProgress folds an optional raw fraction and lifecycle action into
// one value in [0,1].
func normalizeProgress(raw *float64, action Action) float64 {
	switch action {
	case ActionCompleted:
		return 1
	case ActionStarted:
		return 0
	}
	if raw == nil {
		return defaultMidpoint
	}
	return clamp01(*raw)
}

// raisePhase applies max semantics to one phase's normalized progress.
func (t *Tracker) raisePhase(phase Phase, value float64) {
	value = clamp01(value)
	if current, ok := t.phases[phase]; !ok || value > current {
		t.phases[phase] = value
	}
}

// composeSearch maps a search sub-signal into the search phase: query
// generation owns the first 30% of the phase and search execution the
// remaining 70%.
func (t *Tracker) composeSearch(offset, span float64, ev Event) {
	pp := normalizeProgress(ev.Progress, ev.Action)
	t.raisePhase(PhaseSearch, offset+span*pp)
}

// composeResearchEval maps a research-evaluation sub-signal into its phase.
// A completed event whose message marks the research as sufficient forces the
// phase to 1.0 regardless of which sub-signal carried it.
func (t *Tracker) composeResearchEval(offset, span float64, ev Event) {
	if ev.Action == ActionCompleted && containsFold(ev.Message, sufficientMarker) {
		t.raisePhase(PhaseResearchEvaluation, 1)
		return
	}
	pp := normalizeProgress(ev.Progress, ev.Action)
	t.raisePhase(PhaseResearchEvaluation, offset+span*pp)
}

// updateStep records one canonical step's progress for the submodule the
// event is attributed to. Events without a resolvable (module, submodule)
// pair are dropped so they cannot perturb another submodule's state.
func (t *Tracker) updateStep(step Step, ev Event) {
	moduleID, submoduleID, ok := ev.Preview.submoduleRef()
	if !ok {
		return
	}
	key := NewSubmoduleKey(moduleID, submoduleID)
	st := t.submodules[key]
	if st == nil {
		st = newSubmoduleState()
		t.submodules[key] = st
		if !t.submodulesDeclared && len(t.submodules) > t.totalSubmodules {
			t.totalSubmodules = len(t.submodules)
		}
	}
	st.raise(step, normalizeProgress(ev.Progress, ev.Action))
	t.recomputeSubmodulesPhase()
}

// recomputeSubmodulesPhase averages the weighted scalar of every known
// submodule over the total count. With no submodules discovered yet there is
// nothing to average and the phase is left untouched.
func (t *Tracker) recomputeSubmodulesPhase() {
	if len(t.submodules) == 0 {
		return
	}
	denom := t.totalSubmodules
	if denom <= 0 {
		denom = len(t.submodules)
	}
	sum := 0.0
	for _, st := range t.submodules {
		sum += st.scalar(t.weights)
	}
	t.raisePhase(PhaseSubmodules, sum/float64(denom))
}

// discoverTotals opportunistically learns module/submodule counts from a
// tagged preview payload. Unknown tags and malformed payloads carry no
// information; totals only ever rise.
func (t *Tracker) discoverTotals(p *Preview) {
	if p == nil || len(p.Data) == 0 {
		return
	}
	switch p.Type {
	case PreviewModulesDefined:
		var payload modulesDefinedPayload
		if err := json.Unmarshal(p.Data, &payload); err != nil {
			return
		}
		t.raiseTotalModules(len(payload.Modules))
	case PreviewAllSubmodulesPlanned:
		var payload allSubmodulesPlannedPayload
		if err := json.Unmarshal(p.Data, &payload); err != nil {
			return
		}
		t.raiseTotalModules(len(payload.Modules))
		if payload.TotalSubmodulesPlanned != nil && *payload.TotalSubmodulesPlanned >= 0 {
			if *payload.TotalSubmodulesPlanned > t.totalSubmodules {
				t.totalSubmodules = *payload.TotalSubmodulesPlanned
			}
			t.submodulesDeclared = true
		}
	case PreviewModuleSubmodulesPlanned:
		var payload moduleSubmodulesPlannedPayload
		if err := json.Unmarshal(p.Data, &payload); err != nil {
			return
		}
		// Per-module plans only refine the discovered estimate; they never
		// override an explicitly declared total.
		if t.submodulesDeclared || len(payload.Submodules) == 0 {
			return
		}
		if est := len(t.submodules) + len(payload.Submodules); est > t.totalSubmodules {
			t.totalSubmodules = est
		}
	}
}

func (t *Tracker) raiseTotalModules(n int) {
	if n > t.totalModules {
		t.totalModules = n
	}
}

// recomputeOverall maps each reported phase's progress into absolute terms
// and takes the maximum. Because ranges are contiguous and disjoint, any
// progress in a later phase dominates the ceilings of all earlier phases.
// The result is clamped against the last returned value so the exported
// fraction never moves backward.
func (t *Tracker) recomputeOverall() float64 {
	abs := 0.0
	for _, r := range t.table.ranges {
		p, ok := t.phases[r.Name]
		if !ok {
			continue
		}
		if v := r.Start + r.Span()*p; v > abs {
			abs = v
		}
	}
	if abs > t.overall {
		t.overall = abs
	}
	return t.overall
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// containsFold reports whether s contains substr ignoring case.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
