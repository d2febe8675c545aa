package gateway

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Observer receives orchestration signals the caller may want to mirror
// into tracing/metrics backends. The core ships a no-op implementation
// and an otel-backed one; no concrete sink (a running collector,
// Prometheus server) lives in this module.
type Observer interface {
	// ObserveTier is called once per tier actually invoked, after it
	// completes, with the wall-clock duration of that invocation.
	ObserveTier(ctx context.Context, tier int, method string, duration time.Duration)
	// ObserveVerdict is called once per request, with the final Verdict.
	ObserveVerdict(ctx context.Context, v Verdict)
}

type noopObserver struct{}

func (noopObserver) ObserveTier(context.Context, int, string, time.Duration) {}
func (noopObserver) ObserveVerdict(context.Context, Verdict)                {}

// NoopObserver discards every signal; it is the default when the caller
// supplies no Observer.
var NoopObserver Observer = noopObserver{}

// otelObserver mirrors tier durations into an otel histogram and wraps
// each tier invocation in a span, using whatever TracerProvider/
// MeterProvider the caller supplied (no-op providers are safe defaults;
// this never depends on a running collector).
type otelObserver struct {
	tracer       trace.Tracer
	tierDuration metric.Float64Histogram
}

// NewOtelObserver builds an Observer backed by tracerProvider and
// meterProvider.
func NewOtelObserver(tracerProvider trace.TracerProvider, meterProvider metric.MeterProvider) (Observer, error) {
	tracer := tracerProvider.Tracer("github.com/jordigilh/sentinel-gate/pkg/gateway")

	meter := meterProvider.Meter("github.com/jordigilh/sentinel-gate/pkg/gateway")
	hist, err := meter.Float64Histogram(
		"llm_tier_duration_seconds",
		metric.WithDescription("Duration of a single tier invocation, in seconds"),
	)
	if err != nil {
		return nil, err
	}

	return &otelObserver{tracer: tracer, tierDuration: hist}, nil
}

func (o *otelObserver) ObserveTier(ctx context.Context, tier int, method string, duration time.Duration) {
	_, span := o.tracer.Start(ctx, "gateway.tier")
	span.SetAttributes(
		attribute.Int("tier", tier),
		attribute.String("method", method),
	)
	span.End()

	o.tierDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.Int("tier", tier),
		attribute.String("method", method),
	))
}

func (o *otelObserver) ObserveVerdict(ctx context.Context, v Verdict) {
	_, span := o.tracer.Start(ctx, "gateway.verdict")
	span.SetAttributes(
		attribute.String("action", string(v.Action)),
		attribute.Int("tier_used", v.TierUsed),
		attribute.String("method", v.Method),
	)
	span.End()
}
