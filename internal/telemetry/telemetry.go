package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/config"
	"github.com/CodeMonkeyCybersecurity/clguess/internal/core"
)

type telemetry struct {
	tracerProvider *sdktrace.TracerProvider

	probeCounter  metric.Int64Counter
	probeErrors   metric.Int64Counter
	probeDuration metric.Float64Histogram
	trialCounter  metric.Int64Counter
	runCounter    metric.Int64Counter
	runDuration   metric.Float64Histogram
	confirmed     metric.Int64Counter
}

var _ core.Telemetry = (*telemetry)(nil)

func New(ctx context.Context, cfg config.TelemetryConfig) (core.Telemetry, error) {
	if !cfg.Enabled {
		return &noopTelemetry{}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter

	switch cfg.ExporterType {
	case "otlp":
		client := otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		exp, err := otlptrace.New(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t, err := newInstruments(otel.Meter(cfg.ServiceName))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	t.tracerProvider = tp
	return t, nil
}

func newInstruments(meter metric.Meter) (*telemetry, error) {
	t := &telemetry{}
	var err error

	if t.probeCounter, err = meter.Int64Counter("clguess.probes.total",
		metric.WithDescription("Raw requests sent to targets"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if t.probeErrors, err = meter.Int64Counter("clguess.probes.errors",
		metric.WithDescription("Probes that failed at the transport"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if t.probeDuration, err = meter.Float64Histogram("clguess.probe.duration",
		metric.WithDescription("Probe round trip in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if t.trialCounter, err = meter.Int64Counter("clguess.trials.total",
		metric.WithDescription("Mutation trials by terminal state"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if t.runCounter, err = meter.Int64Counter("clguess.runs.total",
		metric.WithDescription("Guessing runs"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if t.runDuration, err = meter.Float64Histogram("clguess.run.duration",
		metric.WithDescription("Guessing run duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if t.confirmed, err = meter.Int64Counter("clguess.mutations.confirmed",
		metric.WithDescription("Mutations confirmed as accepted by the back-end"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *telemetry) RecordProbe(ctx context.Context, phase string, status int, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("probe.phase", phase),
		attribute.Int("http.status_code", status),
	)

	t.probeCounter.Add(ctx, 1, attrs)
	t.probeDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		t.probeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("probe.phase", phase)))
	}
}

func (t *telemetry) RecordTrial(ctx context.Context, state string) {
	t.trialCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("trial.state", state)))
}

func (t *telemetry) RecordRun(ctx context.Context, duration time.Duration, confirmed int, noSignal bool) {
	attrs := metric.WithAttributes(attribute.Bool("run.no_signal", noSignal))

	t.runCounter.Add(ctx, 1, attrs)
	t.runDuration.Record(ctx, duration.Seconds(), attrs)
	if confirmed > 0 {
		t.confirmed.Add(ctx, int64(confirmed))
	}
}

func (t *telemetry) Close() error {
	if t.tracerProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.tracerProvider.Shutdown(ctx)
}

type noopTelemetry struct{}

// NewNoop returns a Telemetry that records nothing.
func NewNoop() core.Telemetry { return &noopTelemetry{} }

func (n *noopTelemetry) RecordProbe(context.Context, string, int, time.Duration, error) {}
func (n *noopTelemetry) RecordTrial(context.Context, string)                            {}
func (n *noopTelemetry) RecordRun(context.Context, time.Duration, int, bool)            {}
func (n *noopTelemetry) Close() error                                                   { return nil }
