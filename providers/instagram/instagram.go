package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"

	"github.com/giantswarm/instagram-link/providers"
)

const (
	// DefaultAuthURL is the Instagram authorize endpoint
	DefaultAuthURL = "https://api.instagram.com/oauth/authorize"

	// DefaultTokenURL is the authorization-code exchange endpoint
	DefaultTokenURL = "https://api.instagram.com/oauth/access_token"

	// DefaultGraphURL is the long-lived token exchange endpoint
	DefaultGraphURL = "https://graph.instagram.com/access_token"

	// DefaultRequestTimeout applies to each call whose context has no deadline
	DefaultRequestTimeout = 10 * time.Second

	// ProviderName is stored with every credential obtained by this provider
	ProviderName = "instagram"

	longLivedGrantType = "ig_exchange_token"
)

// DefaultScopes are requested when Config.Scopes is empty
var DefaultScopes = []string{"user_profile", "user_media"}

// Config holds Instagram OAuth configuration
type Config struct {
	ClientID     string
	ClientSecret string

	// RedirectURL must exactly match the URI registered for the app and used
	// when the authorization code was obtained.
	RedirectURL string

	Scopes []string

	// Endpoint overrides, mostly for tests
	AuthURL  string
	TokenURL string
	GraphURL string

	// RequestTimeout bounds each exchange call when ctx carries no deadline
	RequestTimeout time.Duration

	HTTPClient *http.Client // Optional custom HTTP client

	// Now is the clock used to compute long-lived token expiry
	Now func() time.Time
}

// Provider implements providers.TokenExchanger for Instagram.
type Provider struct {
	config         *oauth2.Config
	graphURL       string
	httpClient     *http.Client
	requestTimeout time.Duration
	validate       *validator.Validate
	now            func() time.Time
}

var _ providers.TokenExchanger = (*Provider)(nil)

// NewProvider creates a new Instagram provider
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("redirect URL is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   valueOr(cfg.AuthURL, DefaultAuthURL),
				TokenURL:  valueOr(cfg.TokenURL, DefaultTokenURL),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		graphURL:       valueOr(cfg.GraphURL, DefaultGraphURL),
		httpClient:     httpClient,
		requestTimeout: timeout,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		now:            now,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return ProviderName
}

// RedirectURL returns the redirect URI sent on both the authorize redirect and the code exchange.
func (p *Provider) RedirectURL() string {
	return p.config.RedirectURL
}

// AuthorizationURL generates the Instagram authorize URL.
// Instagram expects scopes separated by commas, so they are passed as an
// explicit parameter instead of through oauth2's space-joined scope list.
func (p *Provider) AuthorizationURL(state string) string {
	cfg := *p.config
	cfg.Scopes = nil
	return cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("scope", strings.Join(p.config.Scopes, ",")))
}

// ensureContextTimeout ensures the context has a deadline, adding one if needed.
func (p *Provider) ensureContextTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.requestTimeout)
}

// userID keeps the exact text of a user_id sent as a JSON number or string.
type userID string

func (u *userID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = userID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user_id must be a number or string: %w", err)
	}
	*u = userID(n.String())
	return nil
}

// permissionList decodes permissions sent either as a JSON array or as a
// single comma-separated string.
type permissionList []string

func (p *permissionList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		var perms []string
		for _, perm := range strings.Split(s, ",") {
			if perm = strings.TrimSpace(perm); perm != "" {
				perms = append(perms, perm)
			}
		}
		*p = perms
		return nil
	}
	var perms []string
	if err := json.Unmarshal(data, &perms); err != nil {
		return fmt.Errorf("permissions must be a string or an array: %w", err)
	}
	*p = perms
	return nil
}

// shortLivedToken is the hop 1 body.
type shortLivedToken struct {
	AccessToken string         `json:"access_token" validate:"required"`
	UserID      userID         `json:"user_id" validate:"required"`
	Permissions permissionList `json:"permissions"`
}

// ExchangeCode exchanges an authorization code for a short-lived token.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*providers.ProviderToken, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code is empty", providers.ErrExchangeFailed)
	}

	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	form := url.Values{
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {p.config.RedirectURL},
		"code":          {code},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create token request: %w", providers.ErrExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := p.do(req)
	if err != nil {
		return nil, err
	}

	token, err := p.decodeShortLived(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", providers.ErrExchangeFailed, err)
	}

	return &providers.ProviderToken{
		AccessToken:    token.AccessToken,
		TokenType:      "bearer",
		ProviderUserID: string(token.UserID),
		Permissions:    []string(token.Permissions),
	}, nil
}

// decodeShortLived accepts both the flat body and the {"data":[...]} envelope.
func (p *Provider) decodeShortLived(body []byte) (*shortLivedToken, error) {
	var envelope struct {
		Data []shortLivedToken `json:"data"`
		shortLivedToken
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	token := envelope.shortLivedToken
	if len(envelope.Data) > 0 {
		token = envelope.Data[0]
	}

	if err := p.validate.Struct(token); err != nil {
		return nil, fmt.Errorf("invalid token response: %w", err)
	}
	return &token, nil
}

// longLivedToken is the hop 2 body. expires_in is capped at ten years so the
// expiry computation cannot overflow time.Duration.
type longLivedToken struct {
	AccessToken string `json:"access_token" validate:"required"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in" validate:"gt=0,lte=315360000"`
}

// ExchangeLongLived exchanges a short-lived token for a long-lived one.
// ExpiresAt is computed from the local clock at the time the response arrives.
func (p *Provider) ExchangeLongLived(ctx context.Context, shortLivedToken string) (*providers.LongLivedToken, error) {
	if shortLivedToken == "" {
		return nil, fmt.Errorf("%w: short-lived token is empty", providers.ErrExchangeFailed)
	}

	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	query := url.Values{
		"grant_type":    {longLivedGrantType},
		"client_secret": {p.config.ClientSecret},
		"access_token":  {shortLivedToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.graphURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create long-lived token request: %w", providers.ErrExchangeFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := p.do(req)
	if err != nil {
		return nil, err
	}

	var token longLivedToken
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("%w: failed to decode long-lived token response: %w", providers.ErrExchangeFailed, err)
	}
	if err := p.validate.Struct(token); err != nil {
		return nil, fmt.Errorf("%w: invalid long-lived token response: %w", providers.ErrExchangeFailed, err)
	}

	tokenType := token.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}

	return &providers.LongLivedToken{
		AccessToken: token.AccessToken,
		TokenType:   tokenType,
		ExpiresIn:   token.ExpiresIn,
		ExpiresAt:   p.now().Add(time.Duration(token.ExpiresIn) * time.Second),
	}, nil
}

// do sends req and returns the body of a 2xx response.
func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", providers.ErrExchangeFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := providers.ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", providers.ErrExchangeFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %w", providers.ErrExchangeFailed, providers.NewRetrieveError(resp, body))
	}
	return body, nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
