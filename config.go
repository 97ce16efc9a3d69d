package link

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/giantswarm/instagram-link/internal/util"
	"github.com/giantswarm/instagram-link/security"
	"github.com/giantswarm/instagram-link/server"
	"github.com/giantswarm/instagram-link/webhook"
)

const (
	// CallbackPath is where the provider redirects after consent
	CallbackPath = "/api/auth/instagram/callback"

	// StartPath begins the link flow
	StartPath = "/api/auth/instagram"

	settingsPath = "/dashboard/settings"
	loginPath    = "/login"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendValkey   = "valkey"
)

// Config holds the service configuration.
// Structured using composition, one sub-config per collaborator.
type Config struct {
	App             AppConfig
	Instagram       InstagramConfig
	Identity        IdentityConfig
	Webhook         WebhookConfig
	State           StateConfig
	RateLimit       RateLimitConfig
	Security        SecurityConfig
	Storage         StorageConfig
	Instrumentation InstrumentationConfig

	// HTTPTimeout bounds every outbound call (provider, identity service, webhook)
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s" validate:"gt=0"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080" validate:"required"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat  string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`
}

// AppConfig describes the web application users are sent back to.
type AppConfig struct {
	// URL is the application base URL. The provider redirect URI and the
	// default webhook endpoint are derived from it.
	URL string `env:"APP_URL,required" validate:"required,url"`

	// AllowInsecureHTTP permits a plain HTTP app URL on a non-localhost host.
	// WARNING: the callback carries a one-time code that is then exposed in transit.
	AllowInsecureHTTP bool `env:"ALLOW_INSECURE_HTTP"`
}

// InstagramConfig holds the Instagram app credentials and endpoint overrides.
type InstagramConfig struct {
	AppID     string   `env:"INSTAGRAM_APP_ID,required" validate:"required"`
	AppSecret string   `env:"INSTAGRAM_APP_SECRET,required" validate:"required"`
	Scopes    []string `env:"INSTAGRAM_SCOPES" envSeparator:","`

	AuthURL  string `env:"INSTAGRAM_AUTH_URL" validate:"omitempty,url"`
	TokenURL string `env:"INSTAGRAM_TOKEN_URL" validate:"omitempty,url"`
	GraphURL string `env:"INSTAGRAM_GRAPH_URL" validate:"omitempty,url"`
}

// IdentityConfig selects how the inbound session cookie is resolved.
// Either URL (remote lookup) or JWTSecret (local verification) must be set.
type IdentityConfig struct {
	URL        string `env:"IDENTITY_URL" validate:"omitempty,url"`
	ServiceKey string `env:"IDENTITY_SERVICE_KEY"`
	JWTSecret  string `env:"IDENTITY_JWT_SECRET"`

	// JWTAudience is required in locally verified tokens. Empty skips the check.
	JWTAudience string `env:"IDENTITY_JWT_AUDIENCE" envDefault:"authenticated"`

	// CookieName is the cookie carrying the session credential
	CookieName string `env:"SESSION_COOKIE" envDefault:"sb-access-token" validate:"required"`
}

// WebhookConfig configures the post-link webhook subscription.
type WebhookConfig struct {
	VerifyToken string `env:"WEBHOOK_VERIFY_TOKEN"`

	// SubscribeURL overrides the endpoint derived from the app URL
	SubscribeURL string `env:"WEBHOOK_SUBSCRIBE_URL" validate:"omitempty,url"`

	Disabled bool `env:"WEBHOOK_DISABLED"`
}

// StateConfig configures the signed CSRF state.
type StateConfig struct {
	// Secret is the HKDF input for the state signing key
	Secret string        `env:"LINK_STATE_SECRET,required" validate:"required,min=16"`
	TTL    time.Duration `env:"LINK_STATE_TTL" envDefault:"10m" validate:"gt=0"`

	// AllowUnbound accepts states issued to a different user than the session.
	// WARNING: weakens CSRF protection.
	AllowUnbound bool `env:"ALLOW_UNBOUND_STATE"`
}

// RateLimitConfig holds rate limiting configuration for the start endpoint.
type RateLimitConfig struct {
	// RPS is requests per second allowed per IP. Zero disables limiting.
	RPS        float64 `env:"RATE_LIMIT_RPS" envDefault:"1" validate:"gte=0"`
	Burst      int     `env:"RATE_LIMIT_BURST" envDefault:"5" validate:"gte=0"`
	MaxEntries int     `env:"RATE_LIMIT_MAX_ENTRIES" envDefault:"10000" validate:"gte=0"`

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy        bool `env:"TRUST_PROXY"`
	TrustedProxyCount int  `env:"TRUSTED_PROXY_COUNT" envDefault:"1" validate:"gte=0"`
}

// SecurityConfig holds security settings (secure by default)
type SecurityConfig struct {
	// EncryptionKey is a base64 32-byte key for tokens at rest. Empty disables encryption.
	EncryptionKey string `env:"LINK_ENCRYPTION_KEY"`

	AuditLogging bool `env:"AUDIT_LOGGING" envDefault:"true"`
}

// StorageConfig selects and configures the credential store.
type StorageConfig struct {
	Backend string `env:"STORAGE_BACKEND" envDefault:"memory" validate:"oneof=memory sqlite postgres valkey"`

	// Timeout bounds the credential upsert
	Timeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s" validate:"gt=0"`

	SQLitePath      string `env:"SQLITE_PATH" envDefault:"instagram-link.db"`
	PostgresDSN     string `env:"POSTGRES_DSN"`
	ValkeyAddr      string `env:"VALKEY_ADDR"`
	ValkeyPassword  string `env:"VALKEY_PASSWORD"`
	ValkeyDB        int    `env:"VALKEY_DB" validate:"gte=0"`
	ValkeyKeyPrefix string `env:"VALKEY_KEY_PREFIX"`
	ValkeyTLS       bool   `env:"VALKEY_TLS"`
}

// InstrumentationConfig controls OpenTelemetry metrics and tracing.
type InstrumentationConfig struct {
	Enabled         bool   `env:"INSTRUMENTATION_ENABLED" envDefault:"true"`
	MetricsExporter string `env:"METRICS_EXPORTER" envDefault:"prometheus" validate:"oneof=prometheus none"`
	ServiceName     string `env:"SERVICE_NAME" envDefault:"instagram-link"`
}

// LoadConfigFromEnv parses the process environment into a validated Config.
func LoadConfigFromEnv() (*Config, error) {
	return loadConfig(env.Options{})
}

// LoadConfig parses environ instead of the process environment.
func LoadConfig(environ map[string]string) (*Config, error) {
	return loadConfig(env.Options{Environment: environ})
}

func loadConfig(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := validateAppURL(c.App.URL, c.App.AllowInsecureHTTP); err != nil {
		return err
	}

	switch {
	case c.Identity.URL == "" && c.Identity.JWTSecret == "":
		return fmt.Errorf("invalid configuration: IDENTITY_URL or IDENTITY_JWT_SECRET is required")
	case c.Identity.URL != "" && c.Identity.ServiceKey == "":
		return fmt.Errorf("invalid configuration: IDENTITY_SERVICE_KEY is required with IDENTITY_URL")
	}

	if !c.Webhook.Disabled && c.Identity.ServiceKey == "" {
		return fmt.Errorf("invalid configuration: IDENTITY_SERVICE_KEY is required for webhook subscription (or set WEBHOOK_DISABLED)")
	}

	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("invalid configuration: SQLITE_PATH is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("invalid configuration: POSTGRES_DSN is required for the postgres backend")
		}
	case BackendValkey:
		if c.Storage.ValkeyAddr == "" {
			return fmt.Errorf("invalid configuration: VALKEY_ADDR is required for the valkey backend")
		}
	}

	if c.Security.EncryptionKey != "" {
		if _, err := security.KeyFromBase64(c.Security.EncryptionKey); err != nil {
			return fmt.Errorf("invalid configuration: LINK_ENCRYPTION_KEY: %w", err)
		}
	}

	return nil
}

// validateAppURL enforces HTTPS for the app URL.
// HTTP is accepted on localhost, and elsewhere only with allowInsecure.
func validateAppURL(appURL string, allowInsecure bool) error {
	parsed, err := url.Parse(appURL)
	if err != nil {
		return fmt.Errorf("invalid APP_URL: %w", err)
	}

	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		if isLocalhostHostname(parsed.Hostname()) || allowInsecure {
			return nil
		}
		return fmt.Errorf("APP_URL must use HTTPS in production (got http://%s); "+
			"the callback carries an authorization code. Set ALLOW_INSECURE_HTTP=true to override",
			parsed.Hostname())
	default:
		return fmt.Errorf("APP_URL must use http or https, got %q", parsed.Scheme)
	}
}

// isLocalhostHostname checks if a hostname refers to the local machine:
// "localhost", 0.0.0.0, the 127.0.0.0/8 range and ::1.
func isLocalhostHostname(hostname string) bool {
	if hostname == "localhost" || hostname == "0.0.0.0" {
		return true
	}
	ip := net.ParseIP(strings.Trim(hostname, "[]"))
	return ip != nil && ip.IsLoopback()
}

// LogSecurityWarnings logs settings that weaken the default posture.
func (c *Config) LogSecurityWarnings(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	if strings.HasPrefix(c.App.URL, "http://") {
		logger.Warn("SECURITY WARNING: app URL is not HTTPS",
			"app_url", c.App.URL,
			"risk", "Authorization codes exposed in transit")
	}
	if c.Security.EncryptionKey == "" {
		logger.Warn("Token encryption at rest is DISABLED",
			"recommendation", "Set LINK_ENCRYPTION_KEY to a base64 32-byte key")
	}
	if c.RateLimit.RPS == 0 {
		logger.Warn("Rate limiting on the start endpoint is DISABLED")
	}
	if c.RateLimit.TrustProxy {
		logger.Info("Trusting proxy headers for client IP",
			"trusted_proxy_count", c.RateLimit.TrustedProxyCount)
	}
}

// RedirectURL is the provider redirect URI registered for the app.
func (c *Config) RedirectURL() string {
	return util.JoinURL(c.App.URL, CallbackPath)
}

// WebhookEndpoint is the subscribe URL, derived from the app URL unless overridden.
func (c *Config) WebhookEndpoint() string {
	if c.Webhook.SubscribeURL != "" {
		return c.Webhook.SubscribeURL
	}
	return webhook.EndpointFromAppURL(c.App.URL)
}

// StateKey derives the state signing key from the configured secret.
func (c *Config) StateKey() ([]byte, error) {
	return security.DeriveKey([]byte(c.State.Secret), security.StateKeyInfo)
}

// EncryptionKeyBytes returns the at-rest key, or nil when encryption is off.
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	if c.Security.EncryptionKey == "" {
		return nil, nil
	}
	return security.KeyFromBase64(c.Security.EncryptionKey)
}

// ServerConfig maps the flow settings onto server.Config.
func (c *Config) ServerConfig() *server.Config {
	return &server.Config{
		StoreTimeout:      c.Storage.Timeout,
		DisableWebhook:    c.Webhook.Disabled,
		AllowUnboundState: c.State.AllowUnbound,
	}
}

// ProxyPolicy returns the client IP resolution policy.
func (c *Config) ProxyPolicy() security.ProxyPolicy {
	return security.ProxyPolicy{
		TrustProxy:        c.RateLimit.TrustProxy,
		TrustedProxyCount: c.RateLimit.TrustedProxyCount,
	}
}
