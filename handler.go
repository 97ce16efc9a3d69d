package link

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/instagram-link/instrumentation"
	"github.com/giantswarm/instagram-link/security"
	"github.com/giantswarm/instagram-link/server"
	"github.com/giantswarm/instagram-link/session"
)

const (
	endpointStart    = "start"
	endpointCallback = "callback"

	// readinessTimeout bounds a single readiness probe
	readinessTimeout = 2 * time.Second
)

// HandlerConfig configures the HTTP layer.
type HandlerConfig struct {
	// AppURL is the web application base URL redirects point into
	AppURL string

	// CookieName carries the session credential
	CookieName string

	// Proxy decides whether forwarding headers are trusted for the client IP
	Proxy security.ProxyPolicy
}

// Handler is a thin HTTP adapter for the link Server.
// It turns requests into flow calls and outcomes into redirects.
type Handler struct {
	server      *server.Server
	appURL      string
	cookieName  string
	proxy       security.ProxyPolicy
	rateLimiter *security.RateLimiter
	ready       func(context.Context) error
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewHandler creates a new HTTP handler
func NewHandler(srv *server.Server, cfg HandlerConfig, logger *slog.Logger) (*Handler, error) {
	if srv == nil {
		return nil, fmt.Errorf("server is required")
	}
	if cfg.AppURL == "" {
		return nil, fmt.Errorf("app URL is required")
	}
	if cfg.CookieName == "" {
		return nil, fmt.Errorf("session cookie name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		server:     srv,
		appURL:     cfg.AppURL,
		cookieName: cfg.CookieName,
		proxy:      cfg.Proxy,
		logger:     logger,
		tracer:     srv.Instrumentation.Tracer("http"),
	}, nil
}

// SetRateLimiter sets the per-IP limiter for the start endpoint. nil disables it.
func (h *Handler) SetRateLimiter(rl *security.RateLimiter) {
	h.rateLimiter = rl
}

// SetReadinessCheck sets the probe behind /readyz, typically a store ping.
func (h *Handler) SetReadinessCheck(check func(context.Context) error) {
	h.ready = check
}

// Routes mounts the link endpoints and probes on a chi router.
// metrics may be nil.
func (h *Handler) Routes(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(security.RequestIDMiddleware)
	r.Use(middleware.Recoverer)

	// HandleFunc rather than Get so ServeStart/ServeCallback answer other
	// methods themselves and record them.
	r.HandleFunc(StartPath, h.ServeStart)
	r.HandleFunc(CallbackPath, h.ServeCallback)
	r.Get("/healthz", h.ServeHealth)
	r.Get("/readyz", h.ServeReady)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	inst := h.server.Instrumentation
	return otelhttp.NewHandler(r, "instagram-link",
		otelhttp.WithTracerProvider(inst.TracerProvider()),
		otelhttp.WithMeterProvider(inst.MeterProvider()),
		otelhttp.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != "/healthz" && req.URL.Path != "/readyz" && req.URL.Path != "/metrics"
		}),
	)
}

// ServeStart resolves the session, issues a state and redirects to the
// provider's authorize page.
func (h *Handler) ServeStart(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "http.start")
	defer span.End()

	if r.Method != http.MethodGet {
		h.methodNotAllowed(ctx, w, endpointStart, r.Method, startTime)
		return
	}

	security.SetSecurityHeaders(w, h.appURL)
	clientIP := h.proxy.ClientIP(r)

	if h.rateLimiter != nil && !h.rateLimiter.Allow(clientIP) {
		h.server.Auditor.LogRateLimitExceeded(ctx, clientIP)
		h.server.Instrumentation.Metrics().RecordRateLimitExceeded(ctx, endpointStart)
		instrumentation.SetSpanAttributes(span, attribute.Bool("rate_limited", true))
		h.logger.Warn("Rate limit exceeded", "endpoint", endpointStart, "request_id", security.GetRequestID(ctx))
		h.recordHTTPMetrics(ctx, endpointStart, r.Method, http.StatusTooManyRequests, startTime)
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	authURL, err := h.server.StartLink(ctx, session.CredentialFromRequest(r, h.cookieName), clientIP)
	if err != nil {
		reason := server.ReasonOf(err)
		instrumentation.RecordError(span, err)
		h.logger.Warn("Failed to start account link",
			"reason", reason.String(),
			"error", err,
			"request_id", security.GetRequestID(ctx))
		h.redirect(ctx, w, r, endpointStart, RedirectTarget(h.appURL, reason), startTime)
		return
	}

	instrumentation.SetSpanSuccess(span)
	h.redirect(ctx, w, r, endpointStart, authURL, startTime)
}

// ServeCallback handles the provider redirect. Every outcome is a redirect
// back into the app; nothing is rendered.
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "http.callback")
	defer span.End()

	if r.Method != http.MethodGet {
		h.methodNotAllowed(ctx, w, endpointCallback, r.Method, startTime)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("Recovered panic in callback handler",
				"panic", rec,
				"request_id", security.GetRequestID(ctx))
			instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrOutcome, server.ReasonUnknown.String()))
			h.redirect(ctx, w, r, endpointCallback, RedirectTarget(h.appURL, server.ReasonUnknown), startTime)
		}
	}()

	security.SetSecurityHeaders(w, h.appURL)

	query := r.URL.Query()
	req := server.AuthorizationRequest{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
		ClientIP:         h.proxy.ClientIP(r),
	}

	out := h.server.HandleCallback(ctx, req, session.CredentialFromRequest(r, h.cookieName))
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrOutcome, out.Reason.String()))

	h.redirect(ctx, w, r, endpointCallback, RedirectTarget(h.appURL, out.Reason), startTime)
}

// ServeHealth reports liveness.
func (h *Handler) ServeHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ServeReady runs the readiness check, if any.
func (h *Handler) ServeReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.logger.Warn("Readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	h.ServeHealth(w, r)
}

func (h *Handler) redirect(ctx context.Context, w http.ResponseWriter, r *http.Request, endpoint, target string, startTime time.Time) {
	h.recordHTTPMetrics(ctx, endpoint, r.Method, http.StatusFound, startTime)
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) methodNotAllowed(ctx context.Context, w http.ResponseWriter, endpoint, method string, startTime time.Time) {
	h.recordHTTPMetrics(ctx, endpoint, method, http.StatusMethodNotAllowed, startTime)
	w.Header().Set("Allow", http.MethodGet)
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, status int, startTime time.Time) {
	duration := time.Since(startTime).Seconds() * 1000
	h.server.Instrumentation.Metrics().RecordHTTPRequest(ctx, method, endpoint, status, duration)
}
