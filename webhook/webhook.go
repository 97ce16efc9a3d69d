// Package webhook registers a newly linked credential with the event delivery
// function so that Instagram webhooks start flowing for the account.
//
// Subscription is best effort: callers record a failure but never fail the
// link because of it.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/giantswarm/instagram-link/internal/util"
)

const (
	// SubscribePath is appended to the app URL when no explicit endpoint is configured
	SubscribePath = "/functions/v1/instagram-webhook/subscribe"

	// DefaultRequestTimeout bounds a subscribe call when ctx carries no deadline
	DefaultRequestTimeout = 10 * time.Second

	maxErrorBodyLength = 256
)

// ErrSubscriptionFailed is returned for any failed subscription attempt.
var ErrSubscriptionFailed = errors.New("webhook subscription failed")

// Config configures a Subscriber.
type Config struct {
	// Endpoint is the full subscribe URL
	Endpoint string

	// ServiceKey is sent as the bearer token
	ServiceKey string

	// VerifyToken is forwarded with every subscription
	VerifyToken string

	RequestTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Subscriber posts credentials to the webhook subscribe endpoint.
type Subscriber struct {
	endpoint    string
	serviceKey  string
	verifyToken string
	timeout     time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewSubscriber creates a new Subscriber.
func NewSubscriber(cfg Config) (*Subscriber, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Subscriber{
		endpoint:    cfg.Endpoint,
		serviceKey:  cfg.ServiceKey,
		verifyToken: cfg.VerifyToken,
		timeout:     timeout,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// EndpointFromAppURL derives the subscribe URL from the application base URL.
func EndpointFromAppURL(appURL string) string {
	return util.JoinURL(appURL, SubscribePath)
}

type subscribeRequest struct {
	AccessToken string `json:"access_token"`
	VerifyToken string `json:"verify_token"`
}

// Subscribe registers accessToken with the configured verify token.
func (s *Subscriber) Subscribe(ctx context.Context, accessToken string) error {
	return s.SubscribeWithVerifyToken(ctx, accessToken, s.verifyToken)
}

// SubscribeWithVerifyToken registers accessToken using an explicit verify token.
// Non-2xx responses are returned as errors carrying a truncated response body.
func (s *Subscriber) SubscribeWithVerifyToken(ctx context.Context, accessToken, verifyToken string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(subscribeRequest{AccessToken: accessToken, VerifyToken: verifyToken})
	if err != nil {
		return fmt.Errorf("%w: failed to encode request: %w", ErrSubscriptionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", ErrSubscriptionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubscriptionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
		return fmt.Errorf("%w: status %d: %s", ErrSubscriptionFailed, resp.StatusCode, util.SafeTruncate(string(body), maxErrorBodyLength))
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	s.logger.DebugContext(ctx, "Webhook subscription registered", "status", resp.StatusCode)
	return nil
}
