package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xka/flowmon/common/config"
	"github.com/xka/flowmon/common/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Telemetry holds observability components
type Telemetry struct {
	log      *logger.Logger
	provider *sdktrace.TracerProvider
	out      io.WriteCloser
}

// New installs a stdout trace exporter as the global tracer provider. Spans
// go to cfg.Telemetry.TraceFile when set, stderr otherwise.
func New(cfg *config.Config, log *logger.Logger) (*Telemetry, error) {
	var w io.Writer = os.Stderr
	t := &Telemetry{log: log}

	if cfg.Telemetry.TraceFile != "" {
		f, err := os.Create(cfg.Telemetry.TraceFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace file: %w", err)
		}
		w = f
		t.out = f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	if err := t.install(cfg.Service.Name, cfg.Telemetry.Version, exporter); err != nil {
		return nil, err
	}

	log.Info("tracing enabled", "trace_file", cfg.Telemetry.TraceFile)
	return t, nil
}

// NewWithExporter installs the supplied exporter, mainly for tests
func NewWithExporter(serviceName, version string, exporter sdktrace.SpanExporter, log *logger.Logger) (*Telemetry, error) {
	t := &Telemetry{log: log}
	if err := t.install(serviceName, version, exporter); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Telemetry) install(serviceName, version string, exporter sdktrace.SpanExporter) error {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to build trace resource: %w", err)
	}

	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(t.provider)
	return nil
}

// Shutdown flushes pending spans and closes the trace file
func (t *Telemetry) Shutdown(ctx context.Context) error {
	err := t.provider.Shutdown(ctx)
	if t.out != nil {
		if cerr := t.out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// RecordDuration records operation duration
func (t *Telemetry) RecordDuration(operation string, start time.Time) {
	duration := time.Since(start)
	t.log.Debug("operation completed",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	)
}
