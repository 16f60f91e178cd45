package deepagent

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TelemetryConfig configures the engine's OpenTelemetry tracing, the
// concrete backend for the opaque advancedOptions.experimental_telemetry
// passthrough spec §6 names. Narrowed from the teacher's
// internal/observability.TraceConfig to the fields an agent run actually
// produces spans for (no HTTP/DB span helpers -- this module has neither).
type TelemetryConfig struct {
	ServiceName string
	Endpoint    string // OTLP gRPC endpoint; empty disables exporting (no-op tracer)
	Insecure    bool
}

// Tracer wraps an otel.Tracer with the span helpers the engine calls at
// each step and model request, grounded on
// internal/observability/tracing.go's Tracer/Start/RecordError shape.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer builds a Tracer from cfg. With no Endpoint, it returns a
// tracer bound to the process-global (no-op by default) TracerProvider so
// callers can leave telemetry configured without standing up a collector.
func NewTracer(cfg TelemetryConfig) (*Tracer, func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "deepagent"
	}
	if cfg.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, nil, fmt.Errorf("deepagent: create otlp exporter: %w", err)
	}
	res, rerr := resource.New(context.Background(), resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
	))
	if rerr != nil {
		res = resource.Default()
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return &Tracer{tracer: provider.Tracer(cfg.ServiceName)}, provider.Shutdown, nil
}

// StartStep opens a span bracketing one engine step (spec §4.1 "Step
// sequencing"), tagged with the thread id and step number.
func (t *Tracer) StartStep(ctx context.Context, threadID string, step int) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "deepagent.step", trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("deepagent.thread_id", threadID),
			attribute.Int("deepagent.step", step),
		))
}

// StartModelCall opens a span around one ModelClient.Complete invocation.
func (t *Tracer) StartModelCall(ctx context.Context, provider string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "deepagent.model_call", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("deepagent.model", provider)))
}

// RecordError records err on span and marks it failed, a no-op for a
// nil span or nil error.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// WithTelemetry installs a Tracer built from cfg on the engine, so every
// run's steps and model calls produce spans (spec §6
// advancedOptions.experimental_telemetry; enabled by configuring this
// option rather than inspecting the opaque map, since the engine treats
// that map as passthrough-only per spec §9).
func WithTelemetry(tracer *Tracer) EngineOption {
	return func(c *EngineConfig) { c.Telemetry = tracer }
}
