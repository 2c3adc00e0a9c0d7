package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsim/gridsim/sim"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func examplePath(name string) string {
	return filepath.Join("..", "examples", name)
}

func TestRunScenario_PrintsSummary(t *testing.T) {
	// GIVEN the chain example
	var out bytes.Buffer

	// WHEN run with default options
	err := runScenario(context.Background(), examplePath("chain.yaml"), runOptions{traceLevel: "none"}, &out)

	// THEN the run summary MUST appear on the writer
	require.NoError(t, err)
	assert.Contains(t, out.String(), "=== Simulation Summary ===")
	assert.Contains(t, out.String(), "Timesteps            : 3")
	assert.NotContains(t, out.String(), "=== Trace Summary ===")
}

func TestRunScenario_TraceSummary(t *testing.T) {
	var out bytes.Buffer
	err := runScenario(context.Background(), examplePath("feeder.yaml"), runOptions{traceLevel: "updates"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "=== Trace Summary ===")
	assert.Contains(t, out.String(), "contingent")
}

func TestRunScenario_EndOverride(t *testing.T) {
	var out bytes.Buffer
	err := runScenario(context.Background(), examplePath("chain.yaml"), runOptions{traceLevel: "none", end: "45m"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Timesteps            : 2")
}

func TestRunScenario_SpansToStdout(t *testing.T) {
	var out bytes.Buffer
	err := runScenario(context.Background(), examplePath("chain.yaml"), runOptions{traceLevel: "none", traceStdout: true}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"DoNextUpdate"`)
	assert.Contains(t, out.String(), `"Run"`)
}

func TestRunScenario_ServesMetrics(t *testing.T) {
	var out bytes.Buffer
	err := runScenario(context.Background(), examplePath("chain.yaml"), runOptions{traceLevel: "none", metricsAddr: "127.0.0.1:0"}, &out)
	assert.NoError(t, err)
}

func TestRunScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		opts    runOptions
		wantErr string
	}{
		{"bad trace level", examplePath("chain.yaml"), runOptions{traceLevel: "verbose"}, "unknown trace level"},
		{"bad start", examplePath("chain.yaml"), runOptions{traceLevel: "none", start: "soon"}, "invalid --start"},
		{"bad end", examplePath("chain.yaml"), runOptions{traceLevel: "none", end: "later"}, "invalid --end"},
		{"missing file", filepath.Join("nope", "missing.yaml"), runOptions{traceLevel: "none"}, "reading scenario"},
		{"end before start", examplePath("chain.yaml"), runOptions{traceLevel: "none", start: "3h"}, "precedes start"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runScenario(context.Background(), tc.path, tc.opts, &out)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestRunScenario_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err := runScenario(ctx, examplePath("chain.yaml"), runOptions{traceLevel: "none"}, &out)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidateScenario_PrintsRanks(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, validateScenario(examplePath("feeder.yaml"), &out))

	assert.Contains(t, out.String(), "6 objects in 3 ranks")
	assert.Contains(t, out.String(), "rank 0: profile")
	assert.Contains(t, out.String(), "rank 1: meter")
	assert.Contains(t, out.String(), "rank 2 (cycle): house_1, house_2, feeder, ctl")
}

func TestCommands_RequireScenarioArg(t *testing.T) {
	assert.Error(t, runCmd.Args(runCmd, nil))
	assert.NoError(t, runCmd.Args(runCmd, []string{"a.yaml"}))
	assert.Error(t, validateCmd.Args(validateCmd, []string{"a.yaml", "b.yaml"}))
}

func TestServeMetrics_Scrape(t *testing.T) {
	m, err := sim.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	m.Timesteps.Add(3)

	srv, err := serveMetrics("127.0.0.1:0", m)
	require.NoError(t, err)
	defer srv.Close()
	addr := srv.Addr
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "gridsim_timesteps_total 3")
}

func TestInitTracing_NilWriterIsNoop(t *testing.T) {
	tracer, shutdown, err := initTracing(context.Background(), nil, "x.yaml")
	require.NoError(t, err)
	_, span := tracer.Start(context.Background(), "noop")
	span.End()
	assert.False(t, span.SpanContext().IsValid())
	assert.NoError(t, shutdown(context.Background()))
}
