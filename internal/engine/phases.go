package engine

import (
	"fmt"
	"math"
)

// Phase names a fixed-range stage of the generation pipeline.
type Phase string

// Pipeline phases, in execution order.
const (
	PhaseInitialization     Phase = "initialization"
	PhaseSearch             Phase = "search"
	PhaseResearchEvaluation Phase = "research_evaluation"
	PhaseModuleCreation     Phase = "module_creation"
	PhaseSubmodulePlanning  Phase = "submodule_planning"
	PhaseTopicResources     Phase = "topic_resources"
	PhaseSubmodules         Phase = "submodules"
	PhaseModuleResources    Phase = "module_resources"
	PhaseFinalAssembly      Phase = "final_assembly"
)

// PhaseRange assigns a phase its slice of the overall [0,1] scale.
type PhaseRange struct {
	Name  Phase
	Start float64
	End   float64
}

// Span returns the width of the range.
func (r PhaseRange) Span() float64 {
	return r.End - r.Start
}

// Table is an ordered, contiguous partition of [0,1] into phase ranges. It is
// immutable once constructed.
type Table struct {
	ranges []PhaseRange
}

const rangeEpsilon = 1e-9

// NewTable validates and builds a Table. Ranges must be sorted by start,
// strictly increasing within each range, contiguous with no gaps or overlaps,
// and must cover exactly [0,1]. The monotonic aggregation formula depends on
// these properties, so violations are rejected here rather than at update
// time.
func NewTable(ranges []PhaseRange) (Table, error) {
	if len(ranges) == 0 {
		return Table{}, fmt.Errorf("phase table requires at least one range")
	}
	seen := make(map[Phase]struct{}, len(ranges))
	prevEnd := 0.0
	for i, r := range ranges {
		if r.Name == "" {
			return Table{}, fmt.Errorf("range %d: phase name is required", i)
		}
		if _, dup := seen[r.Name]; dup {
			return Table{}, fmt.Errorf("range %d: duplicate phase %q", i, r.Name)
		}
		seen[r.Name] = struct{}{}
		if r.Start >= r.End {
			return Table{}, fmt.Errorf("range %d (%s): start %.4f must be < end %.4f", i, r.Name, r.Start, r.End)
		}
		if math.Abs(r.Start-prevEnd) > rangeEpsilon {
			return Table{}, fmt.Errorf("range %d (%s): start %.4f leaves a gap or overlap at %.4f", i, r.Name, r.Start, prevEnd)
		}
		prevEnd = r.End
	}
	if math.Abs(prevEnd-1.0) > rangeEpsilon {
		return Table{}, fmt.Errorf("phase table must end at 1.0, got %.4f", prevEnd)
	}
	return Table{ranges: append([]PhaseRange(nil), ranges...)}, nil
}

// MustTable builds a Table and panics on invalid ranges. Intended for
// process-configured tables known at compile time.
func MustTable(ranges []PhaseRange) Table {
	t, err := NewTable(ranges)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultTable returns the production phase ranges. The submodules phase
// carries half of the scale because per-submodule drafting dominates the wall
// time of a run.
func DefaultTable() Table {
	return MustTable([]PhaseRange{
		{Name: PhaseInitialization, Start: 0.00, End: 0.05},
		{Name: PhaseSearch, Start: 0.05, End: 0.15},
		{Name: PhaseResearchEvaluation, Start: 0.15, End: 0.20},
		{Name: PhaseModuleCreation, Start: 0.20, End: 0.30},
		{Name: PhaseSubmodulePlanning, Start: 0.30, End: 0.35},
		{Name: PhaseTopicResources, Start: 0.35, End: 0.40},
		{Name: PhaseSubmodules, Start: 0.40, End: 0.90},
		{Name: PhaseModuleResources, Start: 0.90, End: 0.95},
		{Name: PhaseFinalAssembly, Start: 0.95, End: 1.00},
	})
}

// Ranges returns a copy of the table's ranges in order.
func (t Table) Ranges() []PhaseRange {
	return append([]PhaseRange(nil), t.ranges...)
}
