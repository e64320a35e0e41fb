// Package telemetry sets up OpenTelemetry tracing and metrics for kcd.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "kubecd"

// EnvEnabled turns telemetry on when set to a true value.
const EnvEnabled = "KUBECD_OTEL_ENABLED"

// Telemetry holds the tracer and meter of the process.
type Telemetry struct {
	Tracer   trace.Tracer
	Meter    metric.Meter
	Shutdown func(ctx context.Context) error
}

// New returns noop providers unless enabled. Enabled telemetry exports over
// OTLP gRPC, configured through the standard OTEL_EXPORTER_OTLP_* variables,
// and registers the providers globally so the registry client and update
// engine spans are exported.
func New(ctx context.Context, enabled bool) (*Telemetry, error) {
	if !enabled {
		return &Telemetry{
			Tracer:   nooptrace.NewTracerProvider().Tracer(serviceName),
			Meter:    noopmetric.NewMeterProvider().Meter(serviceName),
			Shutdown: func(context.Context) error { return nil },
		}, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	traceExp, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)

	metricExp, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return &Telemetry{
		Tracer: tp.Tracer(serviceName),
		Meter:  mp.Meter(serviceName),
		Shutdown: func(ctx context.Context) error {
			mErr := mp.Shutdown(ctx)
			if tErr := tp.Shutdown(ctx); tErr != nil {
				return tErr
			}
			return mErr
		},
	}, nil
}

// Counters are the poll metrics.
type Counters struct {
	Updates  metric.Int64Counter
	Failures metric.Int64Counter
}

// NewCounters registers the poll counters on m.
func NewCounters(m metric.Meter) (*Counters, error) {
	updates, err := m.Int64Counter("kubecd.poll.updates",
		metric.WithDescription("Image updates found"))
	if err != nil {
		return nil, err
	}
	failures, err := m.Int64Counter("kubecd.poll.failures",
		metric.WithDescription("Releases that could not be checked"))
	if err != nil {
		return nil, err
	}
	return &Counters{Updates: updates, Failures: failures}, nil
}

// Record adds the outcome of one poll.
func (c *Counters) Record(ctx context.Context, updates, failures int) {
	c.Updates.Add(ctx, int64(updates))
	c.Failures.Add(ctx, int64(failures))
}
