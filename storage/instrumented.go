package storage

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/instagram-link/instrumentation"
)

// InstrumentedStore wraps a CredentialStore with a span and metrics per call.
type InstrumentedStore struct {
	next    CredentialStore
	backend string
	tracer  trace.Tracer
	metrics *instrumentation.Metrics
}

var _ CredentialStore = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps next. backend names the store in telemetry.
func NewInstrumentedStore(next CredentialStore, backend string, inst *instrumentation.Instrumentation) *InstrumentedStore {
	return &InstrumentedStore{
		next:    next,
		backend: backend,
		tracer:  inst.Tracer("storage"),
		metrics: inst.Metrics(),
	}
}

// Unwrap returns the wrapped store.
func (s *InstrumentedStore) Unwrap() CredentialStore {
	return s.next
}

func (s *InstrumentedStore) observe(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, s.backend)

	start := time.Now()
	err := fn(ctx)

	s.metrics.RecordStorageOperation(ctx, s.backend, operation, err, float64(time.Since(start).Microseconds())/1000)
	instrumentation.EndSpan(span, err)
	return err
}

// UpsertCredential implements CredentialStore
func (s *InstrumentedStore) UpsertCredential(ctx context.Context, cred *Credential) error {
	return s.observe(ctx, "upsert_credential", func(ctx context.Context) error {
		return s.next.UpsertCredential(ctx, cred)
	})
}

// GetCredential implements CredentialStore
func (s *InstrumentedStore) GetCredential(ctx context.Context, userID, provider string) (*Credential, error) {
	var cred *Credential
	err := s.observe(ctx, "get_credential", func(ctx context.Context) error {
		var err error
		cred, err = s.next.GetCredential(ctx, userID, provider)
		return err
	})
	return cred, err
}

// DeleteCredential implements CredentialStore
func (s *InstrumentedStore) DeleteCredential(ctx context.Context, userID, provider string) error {
	return s.observe(ctx, "delete_credential", func(ctx context.Context) error {
		return s.next.DeleteCredential(ctx, userID, provider)
	})
}
