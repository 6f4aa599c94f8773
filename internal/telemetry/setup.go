package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
)

// Providers bundles the tracer/meter providers built by Setup, plus the
// event counters SlogSink increments per well-known event name.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	EventCounters  map[string]otelmetric.Int64Counter
}

// Setup builds an OpenTelemetry tracer provider (writing spans to w as
// pretty-printed JSON, suitable for local debugging) and a meter
// provider whose reader is the Prometheus exporter, registering every
// counter onto the default Prometheus registry so promhttp.Handler can
// serve them directly — a manual reader nothing ever Collects from would
// silently discard every recorded event.
func Setup(ctx context.Context, serviceName string, w io.Writer) (*Providers, error) {
	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, err
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	reader, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	mp := metric.NewMeterProvider(metric.WithResource(res), metric.WithReader(reader))
	meter := mp.Meter(serviceName)

	counters := make(map[string]otelmetric.Int64Counter)
	for _, name := range []string{
		"flow_runner.completed",
		"flow_runner.paused",
		"flow_runner.failed",
		"app.session_started",
		"app.session_resumed",
	} {
		c, err := meter.Int64Counter(name)
		if err != nil {
			return nil, err
		}
		counters[name] = c
	}

	return &Providers{TracerProvider: tp, MeterProvider: mp, EventCounters: counters}, nil
}
