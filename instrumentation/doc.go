// Package instrumentation provides OpenTelemetry metrics and traces for the
// link service.
//
// Metrics are exported in the Prometheus format through MetricsHandler when
// MetricsExporter is "prometheus". Tests attach a ManualReader through
// Config.MetricReader and a span recorder through Config.SpanProcessor.
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		Enabled:         true,
//		MetricsExporter: instrumentation.MetricsExporterPrometheus,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	mux.Handle("/metrics", inst.MetricsHandler())
//
// # Available Metrics
//
// HTTP Layer:
//   - link.http.requests.total{method, endpoint, status}
//   - link.http.request.duration{endpoint}
//
// Link Flow:
//   - link.started
//   - link.callbacks.total{outcome}
//   - link.callback.duration{outcome}
//   - link.webhook.subscriptions.total{result}
//
// Security:
//   - link.rate_limit.exceeded{endpoint}
//   - link.state.rejected
//
// Storage:
//   - storage.operation.total{backend, operation, result}
//   - storage.operation.duration{backend, operation}
//
// Provider:
//   - provider.api.calls.total{provider, operation, result}
//   - provider.api.duration{provider, operation}
//
// A nil *Instrumentation and a nil *Metrics are valid and record nothing, so
// components can be built without instrumentation in tests.
package instrumentation
