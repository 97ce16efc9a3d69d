package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/instagram-link/instrumentation"
	"github.com/giantswarm/instagram-link/providers"
	"github.com/giantswarm/instagram-link/security"
	"github.com/giantswarm/instagram-link/session"
	"github.com/giantswarm/instagram-link/storage"
)

// AuthorizationRequest holds the query parameters of a provider callback.
type AuthorizationRequest struct {
	Code  string
	State string
	Error string

	// ErrorDescription accompanies Error and is only logged
	ErrorDescription string

	// ClientIP is recorded in audit events
	ClientIP string
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// HandleCallback completes a link flow and returns exactly one Outcome.
// It never panics; a panic in any stage is reported as ReasonUnknown.
func (s *Server) HandleCallback(ctx context.Context, req AuthorizationRequest, sessionCredential string) (out Outcome) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "server.HandleCallback")

	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("Recovered panic in callback flow",
				"panic", r,
				"request_id", security.GetRequestID(ctx))
			out = Outcome{Reason: ReasonUnknown, Err: fmt.Errorf("panic in callback flow: %v", r), UserID: out.UserID}
		}
		s.finishCallback(ctx, span, req, out, start)
	}()

	return s.runCallback(ctx, req, sessionCredential)
}

func (s *Server) runCallback(ctx context.Context, req AuthorizationRequest, sessionCredential string) Outcome {
	if err := checkCallbackRequest(req); err != nil {
		return Outcome{Reason: ReasonOf(err), Err: err}
	}

	claims, err := s.verifyState(ctx, req.State)
	if err != nil {
		return Outcome{Reason: ReasonOf(err), Err: err}
	}

	short, long, err := s.exchange(ctx, req.Code)
	if err != nil {
		return Outcome{Reason: ReasonOf(err), Err: err}
	}

	user, err := s.resolveSession(ctx, sessionCredential)
	if err != nil {
		return Outcome{Reason: ReasonOf(err), Err: err}
	}

	if err := s.checkStateBinding(ctx, claims, user, req.ClientIP); err != nil {
		return Outcome{Reason: ReasonOf(err), Err: err, UserID: user.UserID}
	}

	cred := &storage.Credential{
		UserID:         user.UserID,
		Provider:       s.provider.Name(),
		ProviderUserID: short.ProviderUserID,
		AccessToken:    long.AccessToken,
		TokenExpiresAt: long.ExpiresAt,
		UpdatedAt:      s.now(),
	}
	if err := s.persist(ctx, cred); err != nil {
		return Outcome{Reason: ReasonOf(err), Err: err, UserID: user.UserID}
	}

	return Outcome{
		UserID:     user.UserID,
		Credential: cred,
		WebhookErr: s.subscribeWebhook(ctx, cred),
	}
}

func checkCallbackRequest(req AuthorizationRequest) error {
	if req.Error != "" {
		return fail(ReasonProviderDenied, fmt.Errorf("provider returned error %q", req.Error))
	}
	if req.Code == "" || req.State == "" {
		return fail(ReasonInvalidRequest, errors.New("missing code or state"))
	}
	return nil
}

func (s *Server) verifyState(ctx context.Context, state string) (*security.StateClaims, error) {
	claims, err := s.states.Parse(state)
	if err != nil {
		s.Instrumentation.Metrics().RecordStateRejected(ctx)
		return nil, fail(ReasonInvalidState, err)
	}
	return claims, nil
}

// exchange runs both token hops. The second hop only runs after the first succeeded.
func (s *Server) exchange(ctx context.Context, code string) (*providers.ProviderToken, *providers.LongLivedToken, error) {
	ctx, span := s.tracer.Start(ctx, "callback.exchange")
	defer span.End()

	var short *providers.ProviderToken
	err := s.observeProvider(ctx, "exchange_code", func(ctx context.Context) error {
		var err error
		short, err = s.provider.ExchangeCode(ctx, code)
		if err == nil && (short == nil || short.AccessToken == "") {
			err = fmt.Errorf("%w: empty short-lived token", providers.ErrExchangeFailed)
		}
		return err
	})
	if err != nil {
		s.Auditor.LogExchangeFailed(ctx, "code")
		instrumentation.RecordError(span, err)
		return nil, nil, fail(ReasonExchangeFailed, fmt.Errorf("code exchange: %w", err))
	}

	var long *providers.LongLivedToken
	err = s.observeProvider(ctx, "exchange_long_lived", func(ctx context.Context) error {
		var err error
		long, err = s.provider.ExchangeLongLived(ctx, short.AccessToken)
		if err == nil && (long == nil || long.AccessToken == "") {
			err = fmt.Errorf("%w: empty long-lived token", providers.ErrExchangeFailed)
		}
		return err
	})
	if err != nil {
		s.Auditor.LogExchangeFailed(ctx, "long_lived")
		instrumentation.RecordError(span, err)
		return nil, nil, fail(ReasonExchangeFailed, fmt.Errorf("long-lived exchange: %w", err))
	}

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrProviderUserID, short.ProviderUserID),
		attribute.Int64(instrumentation.AttrExpiresIn, long.ExpiresIn),
	)
	instrumentation.SetSpanSuccess(span)
	return short, long, nil
}

func (s *Server) observeProvider(ctx context.Context, operation string, fn func(context.Context) error) error {
	name := s.provider.Name()
	ctx, span := s.tracer.Start(ctx, "provider."+operation)
	instrumentation.AddProviderAttributes(span, name, operation)

	start := time.Now()
	err := fn(ctx)

	s.Instrumentation.Metrics().RecordProviderAPICall(ctx, name, operation, err, sinceMs(start))
	instrumentation.EndSpan(span, err)
	return err
}

func (s *Server) resolveSession(ctx context.Context, credential string) (*session.UserSession, error) {
	if credential == "" {
		s.Auditor.LogSessionRejected(ctx, string(ReasonNoSession))
		return nil, fail(ReasonNoSession, session.ErrNoSession)
	}

	ctx, span := s.tracer.Start(ctx, "callback.resolve_session")
	user, err := s.sessions.Resolve(ctx, credential)
	if err == nil && (user == nil || user.UserID == "") {
		err = fmt.Errorf("%w: resolver returned no user", session.ErrInvalidSession)
	}
	instrumentation.EndSpan(span, err)

	if err != nil {
		reason := ReasonInvalidSession
		if errors.Is(err, session.ErrNoSession) {
			reason = ReasonNoSession
		}
		s.Auditor.LogSessionRejected(ctx, string(reason))
		return nil, fail(reason, err)
	}
	return user, nil
}

// checkStateBinding rejects a state minted for a different user than the one
// completing the flow. States without a subject are not bound.
func (s *Server) checkStateBinding(ctx context.Context, claims *security.StateClaims, user *session.UserSession, clientIP string) error {
	if s.Config.AllowUnboundState || claims == nil || claims.Subject == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(claims.Subject), []byte(user.UserID)) == 1 {
		return nil
	}
	s.Instrumentation.Metrics().RecordStateRejected(ctx)
	s.Auditor.LogStateRejected(ctx, clientIP)
	return fail(ReasonInvalidState, errors.New("state was issued to a different user"))
}

// persist upserts cred. The write is detached from request cancellation and
// bounded by Config.StoreTimeout.
func (s *Server) persist(ctx context.Context, cred *storage.Credential) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Config.StoreTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "callback.persist")
	err := s.store.UpsertCredential(ctx, cred)
	instrumentation.EndSpan(span, err)

	if err != nil {
		return fail(ReasonPersistenceFailed, err)
	}
	return nil
}

// subscribeWebhook is best effort: its error is recorded and returned for
// the Outcome but never changes the Reason.
func (s *Server) subscribeWebhook(ctx context.Context, cred *storage.Credential) (err error) {
	if s.webhook == nil || s.Config.DisableWebhook {
		return nil
	}

	ctx, span := s.tracer.Start(context.WithoutCancel(ctx), "callback.webhook_subscribe")
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in webhook subscription: %v", r)
		}
		s.Instrumentation.Metrics().RecordWebhookSubscription(ctx, err)
		if err != nil {
			s.Auditor.LogWebhookSubscriptionFailed(ctx, cred.UserID, err)
			s.Logger.Warn("Webhook subscription failed",
				"reason", ReasonWebhookFailed,
				"provider", cred.Provider,
				"error", err,
				"request_id", security.GetRequestID(ctx))
		}
		instrumentation.EndSpan(span, err)
	}()

	return s.webhook.Subscribe(ctx, cred.AccessToken)
}

func (s *Server) finishCallback(ctx context.Context, span trace.Span, req AuthorizationRequest, out Outcome, start time.Time) {
	s.Instrumentation.Metrics().RecordCallback(ctx, out.Reason.String(), sinceMs(start))
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrOutcome, out.Reason.String()))

	if out.Succeeded() {
		s.Auditor.LogLinkCompleted(ctx, out.UserID, out.Credential.ProviderUserID)
		s.Logger.Info("Account linked",
			"provider", out.Credential.Provider,
			"webhook_ok", out.WebhookErr == nil,
			"request_id", security.GetRequestID(ctx))
		instrumentation.EndSpan(span, nil)
		return
	}

	switch out.Reason {
	case ReasonProviderDenied:
		s.Auditor.LogProviderDenied(ctx, req.Error)
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrProviderError, req.Error))
		s.Logger.Warn("Provider denied authorization",
			"error", req.Error,
			"error_description", req.ErrorDescription,
			"request_id", security.GetRequestID(ctx))
	case ReasonInvalidState:
		if out.UserID == "" {
			s.Auditor.LogStateRejected(ctx, req.ClientIP)
		}
	}

	s.Auditor.LogLinkFailed(ctx, out.UserID, string(out.Reason))
	s.Logger.Warn("Account link failed",
		"reason", out.Reason,
		"error", out.Err,
		"request_id", security.GetRequestID(ctx))
	instrumentation.EndSpan(span, out.Err)
}

// StartLink resolves the session behind sessionCredential, issues a state
// bound to that user and returns the provider authorize URL.
// Errors are *FlowError with ReasonNoSession, ReasonInvalidSession or ReasonUnknown.
func (s *Server) StartLink(ctx context.Context, sessionCredential, clientIP string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "server.StartLink")

	user, err := s.resolveSession(ctx, sessionCredential)
	if err != nil {
		instrumentation.EndSpan(span, err)
		return "", err
	}

	state, err := s.states.Issue(user.UserID)
	if err != nil {
		err = fail(ReasonUnknown, fmt.Errorf("failed to issue state: %w", err))
		instrumentation.EndSpan(span, err)
		return "", err
	}

	s.Auditor.LogLinkStarted(ctx, user.UserID, clientIP)
	s.Instrumentation.Metrics().RecordLinkStarted(ctx)
	instrumentation.EndSpan(span, nil)
	return s.provider.AuthorizationURL(state), nil
}
