package engine

// Snapshot is a read-only copy of a Tracker's state for reporting surfaces.
type Snapshot struct {
	// Phases maps each phase that has reported progress to its normalized
	// value.
	Phases map[Phase]float64 `json:"phases"`
	// Submodules maps each discovered submodule key to its weighted scalar.
	Submodules map[SubmoduleKey]float64 `json:"submodules"`
	// TotalModules is the best known module count (0 when unknown).
	TotalModules int `json:"total_modules"`
	// TotalSubmodules is the declared total or the discovered estimate.
	TotalSubmodules int `json:"total_submodules"`
	// Overall is the last exported completion fraction.
	Overall float64 `json:"overall"`
}

// Snapshot copies the tracker's current state. The copy shares nothing with
// the Tracker and is safe to hand across goroutines.
func (t *Tracker) Snapshot() Snapshot {
	snap := Snapshot{
		Phases:          make(map[Phase]float64, len(t.phases)),
		Submodules:      make(map[SubmoduleKey]float64, len(t.submodules)),
		TotalModules:    t.totalModules,
		TotalSubmodules: t.totalSubmodules,
		Overall:         t.overall,
	}
	for phase, v := range t.phases {
		snap.Phases[phase] = v
	}
	for key, st := range t.submodules {
		snap.Submodules[key] = st.scalar(t.weights)
	}
	return snap
}
