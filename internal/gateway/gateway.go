// Package gateway routes pushes to the dispatcher of their provider.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

var (
	// ErrNoProvider is returned for GENERIC pushes, which name no provider.
	ErrNoProvider = errors.New("push does not target a provider")
	// ErrProviderUnavailable is returned when no dispatcher is configured for the provider.
	ErrProviderUnavailable = errors.New("provider is not configured")
)

// Gateway is safe for concurrent use once built.
type Gateway struct {
	dispatchers map[push.Provider]dispatch.Dispatcher
	receipts    dispatch.ReceiptStore
	logger      *slog.Logger
	now         func() time.Time

	tracer      trace.Tracer
	meter       metric.Meter
	instruments instruments
}

// New builds a gateway. receipts may be nil, in which case receipts are only
// returned to the caller. Spans and metrics go to the global OpenTelemetry
// providers unless overridden by opts.
func New(dispatchers map[push.Provider]dispatch.Dispatcher, receipts dispatch.ReceiptStore, logger *slog.Logger, opts ...Option) *Gateway {
	routes := make(map[push.Provider]dispatch.Dispatcher, len(dispatchers))
	for provider, d := range dispatchers {
		if d != nil {
			routes[provider] = d
		}
	}
	g := &Gateway{
		dispatchers: routes,
		receipts:    receipts,
		logger:      logger.With("component", "Gateway"),
		now:         time.Now,
		tracer:      defaultTracer(),
		meter:       defaultMeter(),
	}
	for _, opt := range opts {
		opt(g)
	}

	inst, err := newInstruments(g.meter)
	if err != nil {
		g.logger.Warn("Dispatch metrics disabled", "err", err)
	}
	g.instruments = inst
	return g
}

// Supports reports whether a dispatcher is configured for provider.
func (g *Gateway) Supports(provider push.Provider) bool {
	_, ok := g.dispatchers[provider]
	return ok
}

// Send dispatches p and records the outcome. The receipt is returned whenever
// the provider answered, even if err is non-nil.
func (g *Gateway) Send(ctx context.Context, p *push.Push) (*dispatch.Receipt, error) {
	provider := p.Provider()
	if provider == push.ProviderGeneric {
		return nil, ErrNoProvider
	}
	d, ok := g.dispatchers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, provider)
	}

	ctx, span := g.startSpan(ctx, p)
	defer span.End()

	start := g.now()
	receipt, err := d.Dispatch(ctx, p)
	if receipt == nil {
		g.record(ctx, span, provider, nil, err, g.now().Sub(start))
		return nil, err
	}

	receipt.ID = uuid.NewString()
	receipt.CreatedAt = g.now().UTC()
	g.record(ctx, span, provider, receipt, err, receipt.CreatedAt.Sub(start))

	if g.receipts != nil {
		if saveErr := g.receipts.Save(ctx, receipt); saveErr != nil {
			g.logger.Warn("Failed to persist receipt", "receipt_id", receipt.ID, "err", saveErr)
		}
	}
	if receipt.InvalidTarget {
		g.logger.Info("Provider reported invalid target", "provider", receipt.Provider, "target", receipt.Target)
	}
	return receipt, err
}

// Retryable reports whether err from Send may succeed on a later attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var tooLarge *push.PayloadTooLargeError
	switch {
	case errors.As(err, &tooLarge),
		errors.Is(err, ErrNoProvider),
		errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, dispatch.ErrInvalidPush),
		errors.Is(err, push.ErrMultipleProviders):
		return false
	}
	return true
}
