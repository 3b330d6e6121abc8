package gateway

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

const instrumentationName = "github.com/tinywideclouds/go-push-gateway/internal/gateway"

// Outcome labels recorded on every dispatch.
const (
	outcomeSent     = "sent"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// Option configures a Gateway.
type Option func(*Gateway)

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *Gateway) { g.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider overrides the global OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(g *Gateway) { g.meter = mp.Meter(instrumentationName) }
}

type instruments struct {
	dispatches metric.Int64Counter
	duration   metric.Float64Histogram
}

func defaultTracer() trace.Tracer { return otel.Tracer(instrumentationName) }
func defaultMeter() metric.Meter  { return otel.Meter(instrumentationName) }

func newInstruments(meter metric.Meter) (instruments, error) {
	var inst instruments
	var err error
	inst.dispatches, err = meter.Int64Counter(
		"pushgw_dispatches_total",
		metric.WithDescription("Pushes handed to a provider, by outcome"),
	)
	if err != nil {
		return inst, err
	}
	inst.duration, err = meter.Float64Histogram(
		"pushgw_dispatch_duration_seconds",
		metric.WithDescription("Duration of provider dispatch calls"),
		metric.WithUnit("s"),
	)
	return inst, err
}

func (g *Gateway) startSpan(ctx context.Context, p *push.Push) (context.Context, trace.Span) {
	return g.tracer.Start(ctx, "pushgw.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("pushgw.provider", p.Provider().String())),
	)
}

func (g *Gateway) record(ctx context.Context, span trace.Span, provider push.Provider, receipt *dispatch.Receipt, err error, elapsed time.Duration) {
	outcome := outcomeSent
	switch {
	case err != nil:
		outcome = outcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case receipt == nil || !receipt.Sent:
		outcome = outcomeRejected
	}

	if receipt != nil {
		span.SetAttributes(
			attribute.String("pushgw.receipt.id", receipt.ID),
			attribute.Int("pushgw.status_code", receipt.StatusCode),
			attribute.Bool("pushgw.invalid_target", receipt.InvalidTarget),
		)
		if receipt.Reason != "" {
			span.SetAttributes(attribute.String("pushgw.reason", receipt.Reason))
		}
	}
	span.SetAttributes(attribute.String("pushgw.outcome", outcome))

	attrs := metric.WithAttributes(
		attribute.String("provider", provider.String()),
		attribute.String("outcome", outcome),
	)
	if g.instruments.dispatches != nil {
		g.instruments.dispatches.Add(ctx, 1, attrs)
	}
	if g.instruments.duration != nil {
		g.instruments.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}
