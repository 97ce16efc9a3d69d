package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/giantswarm/instagram-link/internal/util"
)

const (
	userEndpointPath = "/auth/v1/user"

	// DefaultRequestTimeout bounds a resolve call when ctx carries no deadline
	DefaultRequestTimeout = 10 * time.Second

	maxUserResponseBytes = 1 << 20
)

// RemoteConfig configures a RemoteResolver.
type RemoteConfig struct {
	// BaseURL is the identity service URL
	BaseURL string

	// APIKey is sent as the apikey header on every request
	APIKey string

	RequestTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// RemoteResolver validates credentials against the identity service's user endpoint.
type RemoteResolver struct {
	userURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Resolver = (*RemoteResolver)(nil)

// NewRemoteResolver creates a resolver for the identity service at cfg.BaseURL.
func NewRemoteResolver(cfg RemoteConfig) (*RemoteResolver, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("identity service URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("identity service API key is required")
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

	return &RemoteResolver{
		userURL:    util.JoinURL(cfg.BaseURL, userEndpointPath),
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type remoteUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Resolve asks the identity service who owns credential.
func (r *RemoteResolver) Resolve(ctx context.Context, credential string) (*UserSession, error) {
	if credential == "" {
		return nil, ErrNoSession
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.userURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrInvalidSession, err)
	}
	req.Header.Set("apikey", r.apiKey)
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: identity service unreachable: %w", ErrInvalidSession, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrInvalidSession, err)
	}

	if resp.StatusCode != http.StatusOK {
		r.logger.DebugContext(ctx, "Identity service rejected session",
			"status", resp.StatusCode,
			"body", util.SafeTruncate(string(body), 200))
		return nil, fmt.Errorf("%w: identity service returned status %d", ErrInvalidSession, resp.StatusCode)
	}

	var user remoteUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("%w: failed to decode user: %w", ErrInvalidSession, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: identity service returned no user id", ErrInvalidSession)
	}

	return &UserSession{
		UserID:       user.ID,
		Email:        user.Email,
		SessionToken: credential,
	}, nil
}
