package sim

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes scheduler activity as Prometheus collectors. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	Timesteps           prometheus.Counter
	Updates             *prometheus.CounterVec // label kind: scheduled | contingent
	FixpointPasses      prometheus.Histogram
	ConvergenceFailures prometheus.Counter
	Clock               prometheus.Gauge
	StepDuration        prometheus.Histogram
}

// NewMetrics registers scheduler metrics against the provided registerer.
// Metrics already registered under the same name are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	timesteps, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gridsim_timesteps_total",
		Help: "Number of completed timesteps.",
	}), "gridsim_timesteps_total")
	if err != nil {
		return nil, err
	}

	updates, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsim_object_updates_total",
		Help: "Number of object updates, by what triggered them.",
	}, []string{"kind"}), "gridsim_object_updates_total")
	if err != nil {
		return nil, err
	}

	passes, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridsim_fixpoint_passes",
		Help:    "Passes needed for a dependency cycle to settle within a timestep.",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55},
	}), "gridsim_fixpoint_passes")
	if err != nil {
		return nil, err
	}

	failures, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gridsim_convergence_failures_total",
		Help: "Number of dependency cycles that failed to settle.",
	}), "gridsim_convergence_failures_total")
	if err != nil {
		return nil, err
	}

	clock, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridsim_clock_ticks",
		Help: "Current simulation clock in ticks.",
	}), "gridsim_clock_ticks")
	if err != nil {
		return nil, err
	}

	stepDuration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridsim_step_duration_seconds",
		Help:    "Wall-clock duration of DoNextUpdate calls.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	}), "gridsim_step_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:            gatherer,
		Timesteps:           timesteps,
		Updates:             updates,
		FixpointPasses:      passes,
		ConvergenceFailures: failures,
		Clock:               clock,
		StepDuration:        stepDuration,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return nil
	}
	return m.gatherer
}

func (m *Metrics) observeTimestep(clock Time, d time.Duration) {
	if m == nil {
		return
	}
	m.Timesteps.Inc()
	m.Clock.Set(float64(clock))
	m.StepDuration.Observe(d.Seconds())
}

func (m *Metrics) observeUpdate(contingent bool) {
	if m == nil {
		return
	}
	kind := "scheduled"
	if contingent {
		kind = "contingent"
	}
	m.Updates.WithLabelValues(kind).Inc()
}

func (m *Metrics) observePasses(n int) {
	if m == nil {
		return
	}
	m.FixpointPasses.Observe(float64(n))
}

func (m *Metrics) incConvergenceFailures() {
	if m == nil {
		return
	}
	m.ConvergenceFailures.Inc()
}

// RunSummary is the end-of-run report printed by the CLI.
type RunSummary struct {
	RunID      string
	Objects    int
	Ranks      int
	Timesteps  int
	StartTime  Time
	EndTime    Time
	FinalClock Time
	WallTime   time.Duration
}

// Print displays the summary.
func (s RunSummary) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Summary ===")
	fmt.Fprintf(w, "Run ID               : %s\n", s.RunID)
	fmt.Fprintf(w, "Objects              : %d\n", s.Objects)
	fmt.Fprintf(w, "Ranks                : %d\n", s.Ranks)
	fmt.Fprintf(w, "Timesteps            : %d\n", s.Timesteps)
	fmt.Fprintf(w, "Start / End          : %s / %s\n", s.StartTime, s.EndTime)
	fmt.Fprintf(w, "Final Clock          : %s ticks\n", s.FinalClock)
	fmt.Fprintf(w, "Wall Time            : %s\n", s.WallTime)
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (m *Metrics) Handler() http.Handler {
	gatherer := m.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
