package engine

// Step is one of a submodule's internal weighted work units.
type Step string

// Canonical submodule steps.
const (
	StepResearch          Step = "research"
	StepContent           Step = "content"
	StepContentRefinement Step = "content_refinement"
	StepQuiz              Step = "quiz"
)

// canonicalSteps lists every step a submodule's state is initialized with.
var canonicalSteps = []Step{StepResearch, StepContent, StepContentRefinement, StepQuiz}

// DefaultStepWeights returns the production step weights. Resource gathering
// is excluded from the weighting because it cannot be reliably attributed to
// one submodule, so the weights are intentionally not rescaled.
func DefaultStepWeights() map[Step]float64 {
	return map[Step]float64{
		StepResearch:          0.28,
		StepContent:           0.50,
		StepContentRefinement: 0.17,
		StepQuiz:              0.05,
	}
}

// stepForPhase resolves an incoming phase name to a canonical step. Phase
// names that are not step phases report false and are ignored by the tracker.
func stepForPhase(phase string) (Step, bool) {
	switch phase {
	case "submodule_research":
		return StepResearch, true
	case "content_development":
		return StepContent, true
	case "content_evaluation", "content_refinement", "content_enhancement":
		return StepContentRefinement, true
	case "quiz_generation":
		return StepQuiz, true
	default:
		return "", false
	}
}

// submoduleState holds the per-step progress of one discovered submodule.
type submoduleState struct {
	steps map[Step]float64
}

func newSubmoduleState() *submoduleState {
	st := &submoduleState{steps: make(map[Step]float64, len(canonicalSteps))}
	for _, s := range canonicalSteps {
		st.steps[s] = 0
	}
	return st
}

// raise applies max semantics to one step's stored value.
func (st *submoduleState) raise(step Step, value float64) {
	if value > st.steps[step] {
		st.steps[step] = value
	}
}

// scalar is the weighted sum of the submodule's step values, capped at 1.0.
func (st *submoduleState) scalar(weights map[Step]float64) float64 {
	sum := 0.0
	for step, v := range st.steps {
		sum += weights[step] * v
	}
	if sum > 1 {
		return 1
	}
	return sum
}
