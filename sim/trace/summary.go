package trace

import "gonum.org/v1/gonum/stat"

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalTimesteps     int
	TotalUpdates       int
	ContingentUpdates  int
	MeanInterval       float64 // ticks between consecutive timesteps
	StdDevInterval     float64
	MeanUpdatesPerStep float64
	MaxPasses          int
	UpdateDistribution map[string]int // object ID → number of updates
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
// Update counts are only available for traces recorded at TraceLevelUpdates.
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		UpdateDistribution: make(map[string]int),
	}
	if st == nil || len(st.Timesteps) == 0 {
		return summary
	}

	summary.TotalTimesteps = len(st.Timesteps)
	perStep := make([]float64, 0, len(st.Timesteps))
	intervals := make([]float64, 0, len(st.Timesteps))
	for i, ts := range st.Timesteps {
		if i > 0 {
			intervals = append(intervals, float64(ts.Clock-st.Timesteps[i-1].Clock))
		}
		for _, u := range ts.Updates {
			summary.UpdateDistribution[u.ObjectID]++
			if u.Contingent {
				summary.ContingentUpdates++
			}
		}
		summary.TotalUpdates += len(ts.Updates)
		perStep = append(perStep, float64(len(ts.Updates)))
		if ts.Passes > summary.MaxPasses {
			summary.MaxPasses = ts.Passes
		}
	}

	summary.MeanUpdatesPerStep = stat.Mean(perStep, nil)
	switch {
	case len(intervals) > 1:
		summary.MeanInterval, summary.StdDevInterval = stat.MeanStdDev(intervals, nil)
	case len(intervals) == 1:
		summary.MeanInterval = intervals[0]
	}
	return summary
}
