// Package telemetry holds the OpenTelemetry instruments for the upstream
// client, the response cache and session rotation.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/aussiebroadwan/encore"

// Metrics holds every instrument the service records to.
type Metrics struct {
	UpstreamRequests   metric.Int64Counter
	UpstreamDuration   metric.Float64Histogram
	UpstreamRetries    metric.Int64Counter
	BreakerTransitions metric.Int64Counter

	CacheLookups metric.Int64Counter
	CacheErrors  metric.Int64Counter

	TokenRotations     metric.Int64Counter
	TokenReuseDetected metric.Int64Counter
	Logins             metric.Int64Counter
}

// New registers the instruments on provider. A nil provider yields no-op
// instruments.
func New(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)

	m := &Metrics{}
	var err error

	if m.UpstreamRequests, err = meter.Int64Counter(
		"encore.upstream.requests",
		metric.WithDescription("Upstream API calls by operation and outcome"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create upstream.requests counter: %w", err)
	}

	if m.UpstreamDuration, err = meter.Float64Histogram(
		"encore.upstream.duration",
		metric.WithDescription("Upstream API call duration in milliseconds, retries included"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create upstream.duration histogram: %w", err)
	}

	if m.UpstreamRetries, err = meter.Int64Counter(
		"encore.upstream.retries",
		metric.WithDescription("Scheduled upstream retries by reason"),
		metric.WithUnit("{retry}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create upstream.retries counter: %w", err)
	}

	if m.BreakerTransitions, err = meter.Int64Counter(
		"encore.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create breaker.transitions counter: %w", err)
	}

	if m.CacheLookups, err = meter.Int64Counter(
		"encore.cache.lookups",
		metric.WithDescription("Response cache lookups by result"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cache.lookups counter: %w", err)
	}

	if m.CacheErrors, err = meter.Int64Counter(
		"encore.cache.errors",
		metric.WithDescription("Swallowed response cache failures"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cache.errors counter: %w", err)
	}

	if m.TokenRotations, err = meter.Int64Counter(
		"encore.session.rotations",
		metric.WithDescription("Session refresh outcomes"),
		metric.WithUnit("{rotation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create session.rotations counter: %w", err)
	}

	if m.TokenReuseDetected, err = meter.Int64Counter(
		"encore.session.reuse_detected",
		metric.WithDescription("Stale or cross-family session credentials presented"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create session.reuse_detected counter: %w", err)
	}

	if m.Logins, err = meter.Int64Counter(
		"encore.session.logins",
		metric.WithDescription("Completed login callbacks"),
		metric.WithUnit("{login}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create session.logins counter: %w", err)
	}

	return m, nil
}

// Noop returns instruments that discard everything.
func Noop() *Metrics {
	m, _ := New(noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordUpstreamRequest(ctx context.Context, operation, outcome string, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.UpstreamRequests.Add(ctx, 1, attrs)
	m.UpstreamDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("operation", operation)))
}

func (m *Metrics) RecordUpstreamRetry(ctx context.Context, operation, reason string) {
	m.UpstreamRetries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("reason", reason),
	))
}

func (m *Metrics) RecordBreakerTransition(ctx context.Context, upstream, from, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("upstream", upstream),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordCacheLookup records hit, miss or short (fresh but too few items).
func (m *Metrics) RecordCacheLookup(ctx context.Context, kind, result string) {
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}

func (m *Metrics) RecordCacheError(ctx context.Context, operation string) {
	m.CacheErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

func (m *Metrics) RecordTokenRotation(ctx context.Context, outcome string) {
	m.TokenRotations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTokenReuse records a detected replay. reason is "version" or "family".
func (m *Metrics) RecordTokenReuse(ctx context.Context, reason string) {
	m.TokenReuseDetected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordLogin(ctx context.Context, created bool) {
	m.Logins.Add(ctx, 1, metric.WithAttributes(attribute.Bool("new_account", created)))
}
