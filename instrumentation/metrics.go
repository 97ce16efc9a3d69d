package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the link service.
// Recording methods are safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP Layer Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Link Flow Metrics
	LinkStarted      metric.Int64Counter
	CallbacksTotal   metric.Int64Counter
	CallbackDuration metric.Float64Histogram

	// Security Metrics
	RateLimitExceeded metric.Int64Counter
	StateRejected     metric.Int64Counter

	// Storage Metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram

	// Provider Metrics
	ProviderAPICallsTotal metric.Int64Counter
	ProviderAPIDuration   metric.Float64Histogram

	// Webhook Metrics
	WebhookSubscriptionsTotal metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")
	providerMeter := inst.Meter("provider")

	m := &Metrics{}
	var err error

	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"link.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"link.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.LinkStarted, err = serverMeter.Int64Counter(
		"link.started",
		metric.WithDescription("Number of account link flows started"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create link.started counter: %w", err)
	}

	m.CallbacksTotal, err = serverMeter.Int64Counter(
		"link.callbacks.total",
		metric.WithDescription("Number of provider callbacks by outcome"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create link.callbacks.total counter: %w", err)
	}

	m.CallbackDuration, err = serverMeter.Float64Histogram(
		"link.callback.duration",
		metric.WithDescription("Callback processing duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create link.callback.duration histogram: %w", err)
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"link.rate_limit.exceeded",
		metric.WithDescription("Number of rate limit violations"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	m.StateRejected, err = securityMeter.Int64Counter(
		"link.state.rejected",
		metric.WithDescription("Number of callbacks whose state failed verification"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create state.rejected counter: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"storage.operation.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.ProviderAPICallsTotal, err = providerMeter.Int64Counter(
		"provider.api.calls.total",
		metric.WithDescription("Total number of provider API calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.calls.total counter: %w", err)
	}

	m.ProviderAPIDuration, err = providerMeter.Float64Histogram(
		"provider.api.duration",
		metric.WithDescription("Provider API call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.duration histogram: %w", err)
	}

	m.WebhookSubscriptionsTotal, err = serverMeter.Int64Counter(
		"link.webhook.subscriptions.total",
		metric.WithDescription("Number of webhook subscription attempts by result"),
		metric.WithUnit("{subscription}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook.subscriptions.total counter: %w", err)
	}

	return m, nil
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordLinkStarted records a redirect to the provider's authorize page
func (m *Metrics) RecordLinkStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.LinkStarted.Add(ctx, 1)
}

// RecordCallback records a finished callback. outcome is "success" or the failure reason.
func (m *Metrics) RecordCallback(ctx context.Context, outcome string, durationMs float64) {
	if m == nil {
		return
	}
	m.CallbacksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.CallbackDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordStateRejected records a callback with an unverifiable state
func (m *Metrics) RecordStateRejected(ctx context.Context) {
	if m == nil {
		return
	}
	m.StateRejected.Add(ctx, 1)
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, backend, operation string, err error, durationMs float64) {
	if m == nil {
		return
	}
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
		attribute.String("result", resultOf(err)),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
	))
}

// RecordProviderAPICall records a provider API call
func (m *Metrics) RecordProviderAPICall(ctx context.Context, provider, operation string, err error, durationMs float64) {
	if m == nil {
		return
	}
	m.ProviderAPICallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
		attribute.String("result", resultOf(err)),
	))
	m.ProviderAPIDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
	))
}

// RecordWebhookSubscription records a webhook subscription attempt
func (m *Metrics) RecordWebhookSubscription(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.WebhookSubscriptionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", resultOf(err))))
}
