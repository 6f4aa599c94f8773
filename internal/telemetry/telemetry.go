// Package telemetry adapts the core's Clock and TelemetrySink ports: a
// real wall clock, and an event sink that logs structurally via slog and,
// when its context carries a recording OpenTelemetry span, adds each event
// to that span.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// RealClock satisfies ports.Clock with the wall clock.
type RealClock struct{}

func (RealClock) NowMs() int64 { return time.Now().UnixMilli() }

// SlogSink satisfies ports.TelemetrySink, logging every event at info level
// and — when ctx carries a live span — recording it as a span event too.
type SlogSink struct {
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Counters map[string]otelmetric.Int64Counter
	ctx      context.Context
}

// NewSlogSink builds a sink bound to ctx for span correlation; pass
// context.Background() when no span context is available.
func NewSlogSink(logger *slog.Logger, tracer trace.Tracer, counters map[string]otelmetric.Int64Counter, ctx context.Context) *SlogSink {
	if ctx == nil {
		ctx = context.Background()
	}
	return &SlogSink{Logger: logger, Tracer: tracer, Counters: counters, ctx: ctx}
}

func (s *SlogSink) RecordEvent(name string, properties map[string]string) {
	args := make([]any, 0, len(properties)*2)
	for k, v := range properties {
		args = append(args, k, v)
	}
	s.Logger.Info(name, args...)

	if c, ok := s.Counters[name]; ok {
		c.Add(s.ctx, 1)
	}

	if s.Tracer == nil {
		return
	}
	span := trace.SpanFromContext(s.ctx)
	if !span.IsRecording() {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(properties))
	for k, v := range properties {
		attrs = append(attrs, attribute.String(k, v))
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
