package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/gridsim/gridsim/sim"
)

// initTracing returns a tracer exporting spans to w, or a no-op tracer when w
// is nil. The shutdown function flushes pending spans.
func initTracing(ctx context.Context, w io.Writer, scenarioPath string) (oteltrace.Tracer, func(context.Context) error, error) {
	if w == nil {
		return noop.NewTracerProvider().Tracer("gridsim"), func(context.Context) error { return nil }, nil
	}

	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create span exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", "gridsim"),
		attribute.String("gridsim.scenario", scenarioPath),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("create resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(res),
	)
	logrus.Infof("tracing enabled: stdout exporter")
	return tp.Tracer("gridsim"), tp.Shutdown, nil
}

// shutdownWithTimeout invokes shutdown with a bounded timeout, logging failures.
func shutdownWithTimeout(shutdown func(context.Context) error) {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logrus.Warnf("tracing shutdown failed: %v", err)
	}
}

// serveMetrics exposes m on addr under /metrics until the returned server is
// shut down. The server's Addr holds the bound address.
func serveMetrics(addr string, m *sim.Metrics) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("metrics server: %v", err)
		}
	}()
	logrus.Infof("serving metrics on http://%s/metrics", srv.Addr)
	return srv, nil
}
