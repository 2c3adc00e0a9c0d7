package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gridsim/gridsim/sim"
	"github.com/gridsim/gridsim/sim/scenario"
	"github.com/gridsim/gridsim/sim/trace"
)

var (
	logLevel      string // Log verbosity level
	startOverride string // Start time override (duration, e.g. "6h")
	endOverride   string // End time override (duration)
	maxIterations int    // Fixpoint pass limit override
	traceLevel    string // Timestep trace verbosity
	metricsAddr   string // Address for the Prometheus /metrics endpoint
	traceStdout   bool   // Export OpenTelemetry spans to stdout
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "gridsim",
	Short: "Dependency-ranked discrete-event simulator",
}

// runOptions collects the run command's flags.
type runOptions struct {
	start         string
	end           string
	maxIterations int
	traceLevel    string
	metricsAddr   string
	traceStdout   bool
}

// runCmd loads a scenario and runs it to completion
var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run a scenario",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		opts := runOptions{
			start:         startOverride,
			end:           endOverride,
			maxIterations: maxIterations,
			traceLevel:    traceLevel,
			metricsAddr:   metricsAddr,
			traceStdout:   traceStdout,
		}
		if err := runScenario(ctx, args[0], opts, os.Stdout); err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Info("Simulation complete.")
	},
}

// validateCmd checks a scenario and prints its ranks without running it
var validateCmd = &cobra.Command{
	Use:   "validate <scenario.yaml>",
	Short: "Validate a scenario and print its evaluation order",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		if err := validateScenario(args[0], os.Stdout); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

func loadSpec(path string, opts runOptions) (*scenario.Spec, error) {
	spec, err := scenario.LoadSpec(path)
	if err != nil {
		return nil, err
	}
	if opts.start != "" {
		d, err := time.ParseDuration(opts.start)
		if err != nil {
			return nil, fmt.Errorf("invalid --start: %w", err)
		}
		spec.Start = &d
	}
	if opts.end != "" {
		d, err := time.ParseDuration(opts.end)
		if err != nil {
			return nil, fmt.Errorf("invalid --end: %w", err)
		}
		spec.End = &d
	}
	if opts.maxIterations > 0 {
		spec.MaxIterations = opts.maxIterations
	}
	return spec, nil
}

// runScenario builds and runs the scenario at path, writing the run summary to out.
func runScenario(ctx context.Context, path string, opts runOptions, out io.Writer) error {
	if !trace.IsValidTraceLevel(opts.traceLevel) {
		return fmt.Errorf("unknown trace level %q; valid: none, timesteps, updates", opts.traceLevel)
	}
	spec, err := loadSpec(path, opts)
	if err != nil {
		return err
	}

	metrics, err := sim.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	if opts.metricsAddr != "" {
		srv, err := serveMetrics(opts.metricsAddr, metrics)
		if err != nil {
			return err
		}
		defer srv.Close()
	}

	var spanOut io.Writer
	if opts.traceStdout {
		spanOut = out
	}
	tracer, shutdown, err := initTracing(ctx, spanOut, path)
	if err != nil {
		return err
	}
	defer shutdownWithTimeout(shutdown)

	s, err := scenario.Build(spec, scenario.Options{
		Trace:   trace.TraceConfig{Level: trace.TraceLevel(opts.traceLevel)},
		Metrics: metrics,
		Tracer:  tracer,
	})
	if err != nil {
		return err
	}
	logrus.Infof("Starting run %s: %d objects, start=%s end=%s",
		s.RunID(), s.Registry().Len(), s.StartTime(), s.EndTime())

	wallStart := time.Now()
	if err := s.Initialize(); err != nil {
		return err
	}
	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("run %s failed at t=%s: %w", s.RunID(), s.CurrentTime(), err)
	}

	s.Summary(time.Since(wallStart)).Print(out)
	if s.Trace().Config.Enabled() {
		printTraceSummary(out, trace.Summarize(s.Trace()))
	}
	return nil
}

func printTraceSummary(w io.Writer, ts *trace.TraceSummary) {
	fmt.Fprintln(w, "=== Trace Summary ===")
	fmt.Fprintf(w, "Timesteps            : %d\n", ts.TotalTimesteps)
	fmt.Fprintf(w, "Mean Interval        : %.1f ticks (stddev %.1f)\n", ts.MeanInterval, ts.StdDevInterval)
	fmt.Fprintf(w, "Max Fixpoint Passes  : %d\n", ts.MaxPasses)
	if ts.TotalUpdates > 0 {
		fmt.Fprintf(w, "Updates              : %d (%d contingent, %.2f per step)\n",
			ts.TotalUpdates, ts.ContingentUpdates, ts.MeanUpdatesPerStep)
	}
}

// validateScenario builds the scenario at path and prints its rank groups.
func validateScenario(path string, out io.Writer) error {
	spec, err := scenario.LoadSpec(path)
	if err != nil {
		return err
	}
	s, err := scenario.Build(spec, scenario.Options{})
	if err != nil {
		return err
	}
	reg := s.Registry()
	fmt.Fprintf(out, "%s: %d objects in %d ranks\n", path, reg.Len(), reg.NumRanks())
	for rank := 0; rank < reg.NumRanks(); rank++ {
		ids := make([]string, 0)
		for _, o := range reg.Group(rank) {
			ids = append(ids, o.ID())
		}
		marker := ""
		if reg.Cyclic(rank) {
			marker = " (cycle)"
		}
		fmt.Fprintf(out, "  rank %d%s: %s\n", rank, marker, strings.Join(ids, ", "))
	}
	return nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().StringVar(&startOverride, "start", "", "Override the scenario start time (duration, e.g. 6h)")
	runCmd.Flags().StringVar(&endOverride, "end", "", "Override the scenario end time (duration, e.g. 24h)")
	runCmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Override the fixpoint pass limit (0 = scenario value)")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "none", "Timestep trace verbosity: none, timesteps, updates")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run (e.g. :9090)")
	runCmd.Flags().BoolVar(&traceStdout, "trace-stdout", false, "Export OpenTelemetry spans to stdout")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
