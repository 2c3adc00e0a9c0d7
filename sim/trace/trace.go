package trace

// TraceLevel controls the verbosity of timestep tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelTimesteps records one entry per timestep without per-object detail.
	TraceLevelTimesteps TraceLevel = "timesteps"
	// TraceLevelUpdates records every object update.
	TraceLevelUpdates TraceLevel = "updates"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelTimesteps: true,
	TraceLevelUpdates:   true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// Enabled reports whether anything is recorded.
func (c TraceConfig) Enabled() bool {
	return c.Level != TraceLevelNone && c.Level != ""
}

// SimulationTrace collects timestep records during a run.
type SimulationTrace struct {
	Config    TraceConfig
	Timesteps []TimestepRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:    config,
		Timesteps: make([]TimestepRecord, 0),
	}
}

// RecordTimestep appends a timestep record. Per-update detail is dropped
// unless the level is TraceLevelUpdates.
func (st *SimulationTrace) RecordTimestep(record TimestepRecord) {
	if !st.Config.Enabled() {
		return
	}
	if st.Config.Level != TraceLevelUpdates {
		record.Updates = nil
	}
	st.Timesteps = append(st.Timesteps, record)
}
