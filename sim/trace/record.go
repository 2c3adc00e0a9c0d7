// Package trace provides timestep-trace recording for scheduler analysis.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// UpdateRecord captures a single object update within a timestep.
type UpdateRecord struct {
	ObjectID   string
	Rank       int
	Pass       int  // fixpoint pass within a cyclic rank, 1-based; always 1 for acyclic ranks
	Contingent bool // requested via RequestUpdate rather than by valid-until time
}

// TimestepRecord captures one completed DoNextUpdate call.
type TimestepRecord struct {
	Step    int
	Clock   int64
	Updates []UpdateRecord
	Passes  int // most fixpoint passes any cyclic rank needed in this step
}
