// Package telemetry wraps OpenTelemetry tracing around the iteration loop's
// provider calls, tool dispatches, and the AoT scheduler's node dispatches.
// Spans are the only observability surface this package owns; counters and
// gauges live in internal/metrics.
package telemetry

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

// Config configures a Tracer. An empty Endpoint yields a no-op tracer that
// still satisfies every call site but never exports anything - the default
// for tests and for embedders that haven't wired a collector.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	SamplingRate   float64
	Insecure       bool
}

// Tracer issues spans for this module's five instrumented operations: loop
// iterations, model calls, tool calls, tool-call batches, and AoT tasks.
type Tracer struct {
	tracer trace.Tracer
}

// New constructs a Tracer and a shutdown func that flushes and closes the
// exporter. The shutdown func is always safe to call, including on the no-op
// path.
func New(ctx context.Context, cfg Config) (*Tracer, func(context.Context) error, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "attocode-core"
	}
	if cfg.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(name)}, func(context.Context) error { return nil }, nil
	}

	rate := cfg.SamplingRate
	if rate == 0 {
		rate = 1.0
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", name),
		attribute.String("service.version", cfg.ServiceVersion),
	))
	if err != nil {
		res = resource.Default()
	}

	var sampler sdktrace.Sampler
	switch {
	case rate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case rate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(rate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{tracer: provider.Tracer(name)}, provider.Shutdown, nil
}

// StartIteration opens a span for one loop iteration.
func (t *Tracer) StartIteration(ctx context.Context, iteration int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "agent.iteration", trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int("agent.iteration", iteration)))
}

// StartModelCall opens a span for one provider.Chat call.
func (t *Tracer) StartModelCall(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("llm.%s", provider), trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", provider),
			attribute.String("llm.model", model),
		))
}

// StartToolCall opens a span for one dispatcher.Execute call.
func (t *Tracer) StartToolCall(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("tool.%s", toolName), trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("tool.name", toolName)))
}

// StartToolBatch opens a span for one iteration's tool-call dispatch batch.
func (t *Tracer) StartToolBatch(ctx context.Context, batchSize int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "agent.tool_batch", trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int("agent.tool_batch_size", batchSize)))
}

// StartAoTTask opens a span for one scheduler node's dispatch. Nodes in the
// same ready set do not share a span: each starts and ends independently, so
// a span's duration reflects that one node's run rather than however long
// its slowest sibling in the same polling tick happened to take.
func (t *Tracer) StartAoTTask(ctx context.Context, taskID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "aot.task", trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("aot.task_id", taskID)))
}

// RecordError marks span as failed and attaches err, a no-op if err is nil.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
