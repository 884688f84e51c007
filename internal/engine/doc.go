// Package engine computes a single, monotonically non-decreasing completion
// fraction for one course-generation run from a stream of heterogeneous
// pipeline events. It owns the phase range table, the composite sub-phase
// composers for search and research evaluation, the per-submodule step
// tracker, and the totals discovery that learns module/submodule counts from
// preview payloads. The engine is purely observational: it never fails on
// malformed input and has no side effects beyond its own state.
package engine
