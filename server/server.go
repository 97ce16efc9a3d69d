package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/instagram-link/instrumentation"
	"github.com/giantswarm/instagram-link/providers"
	"github.com/giantswarm/instagram-link/security"
	"github.com/giantswarm/instagram-link/session"
	"github.com/giantswarm/instagram-link/storage"
)

// StateCodec issues and verifies CSRF state values.
type StateCodec interface {
	Issue(subject string) (string, error)
	Parse(state string) (*security.StateClaims, error)
}

// WebhookSubscriber registers a stored credential for provider webhooks.
type WebhookSubscriber interface {
	Subscribe(ctx context.Context, accessToken string) error
}

// Server runs the account-link flow (provider-agnostic).
// It holds no per-request state and is safe for concurrent use.
type Server struct {
	provider providers.TokenExchanger
	states   StateCodec
	sessions session.Resolver
	store    storage.CredentialStore
	webhook  WebhookSubscriber

	Auditor         *security.Auditor
	Logger          *slog.Logger
	Config          *Config
	Instrumentation *instrumentation.Instrumentation

	tracer trace.Tracer
	now    func() time.Time
}

// New creates a new account-link server
func New(
	provider providers.TokenExchanger,
	states StateCodec,
	sessions session.Resolver,
	store storage.CredentialStore,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if states == nil {
		return nil, fmt.Errorf("state codec is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session resolver is required")
	}
	if store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv := &Server{
		provider: provider,
		states:   states,
		sessions: sessions,
		store:    store,
		Config:   applyDefaults(config, logger),
		Logger:   logger,
		now:      time.Now,
	}
	srv.SetInstrumentation(nil)
	return srv, nil
}

// SetWebhookSubscriber sets the best-effort subscriber run after a successful upsert
func (s *Server) SetWebhookSubscriber(w WebhookSubscriber) {
	s.webhook = w
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetInstrumentation sets the tracer and metrics used by the flow.
// A nil value disables both.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	s.tracer = inst.Tracer("server")
}

// SetClock overrides the time source used for credential timestamps
func (s *Server) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Provider returns the configured token exchanger
func (s *Server) Provider() providers.TokenExchanger {
	return s.provider
}

// Store returns the credential store
func (s *Server) Store() storage.CredentialStore {
	return s.store
}
