package server

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/giantswarm/instagram-link/instrumentation"
	"github.com/giantswarm/instagram-link/internal/testutil"
	providermock "github.com/giantswarm/instagram-link/providers/mock"
	storagemock "github.com/giantswarm/instagram-link/storage/mock"
)

func TestNew_RequiredCollaborators(t *testing.T) {
	provider := providermock.NewMockProvider()
	codec := testutil.NewStateCodec(t, time.Now)
	sessions := testutil.StaticSessions(nil)
	store := storagemock.NewMockCredentialStore()

	tests := []struct {
		name string
		fn   func() (*Server, error)
	}{
		{"nil provider", func() (*Server, error) { return New(nil, codec, sessions, store, nil, nil) }},
		{"nil state codec", func() (*Server, error) { return New(provider, nil, sessions, store, nil, nil) }},
		{"nil resolver", func() (*Server, error) { return New(provider, codec, nil, store, nil, nil) }},
		{"nil store", func() (*Server, error) { return New(provider, codec, sessions, nil, nil, nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.fn(); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	srv, err := New(
		providermock.NewMockProvider(),
		testutil.NewStateCodec(t, time.Now),
		testutil.StaticSessions(nil),
		storagemock.NewMockCredentialStore(),
		nil, nil,
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if srv.Config.StoreTimeout != DefaultStoreTimeout {
		t.Errorf("StoreTimeout = %v, want %v", srv.Config.StoreTimeout, DefaultStoreTimeout)
	}
	if srv.Logger == nil {
		t.Error("Logger = nil, want slog.Default()")
	}
	if srv.Config.AllowUnboundState {
		t.Error("AllowUnboundState should default to false")
	}
}

func TestHandleCallback_Telemetry(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	recorder := tracetest.NewSpanRecorder()
	inst, err := instrumentation.New(instrumentation.Config{
		Enabled:       true,
		MetricReader:  reader,
		SpanProcessor: recorder,
	})
	if err != nil {
		t.Fatalf("instrumentation.New() error = %v", err)
	}
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })

	env := newTestEnv(t)
	env.srv.SetInstrumentation(inst)

	env.srv.HandleCallback(context.Background(), env.validRequest(t), testSession)
	env.srv.HandleCallback(context.Background(), AuthorizationRequest{Code: "abc", State: "forged"}, testSession)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	outcomes := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "link.callbacks.total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("link.callbacks.total is %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key("outcome"))
				outcomes[v.AsString()] += dp.Value
			}
		}
	}
	if outcomes["success"] != 1 || outcomes["invalid_state"] != 1 {
		t.Errorf("callback outcomes = %v, want one success and one invalid_state", outcomes)
	}

	names := map[string]bool{}
	for _, span := range recorder.Ended() {
		names[span.Name()] = true
	}
	for _, want := range []string{
		"server.HandleCallback",
		"callback.exchange",
		"provider.exchange_code",
		"provider.exchange_long_lived",
		"callback.resolve_session",
		"callback.persist",
		"callback.webhook_subscribe",
	} {
		if !names[want] {
			t.Errorf("missing span %q (got %v)", want, names)
		}
	}
}
