package link

import (
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/instagram-link/security"
)

func validEnv() map[string]string {
	return map[string]string{
		"APP_URL":              "https://app.example.com",
		"INSTAGRAM_APP_ID":     "app-id",
		"INSTAGRAM_APP_SECRET": "app-secret",
		"IDENTITY_URL":         "https://id.example.com",
		"IDENTITY_SERVICE_KEY": "service-key",
		"LINK_STATE_SECRET":    "0123456789abcdef0123456789abcdef",
	}
}

func withEnv(overrides map[string]string) map[string]string {
	environ := validEnv()
	for k, v := range overrides {
		if v == "" {
			delete(environ, k)
			continue
		}
		environ[k] = v
	}
	return environ
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(validEnv())
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.State.TTL != 10*time.Minute {
		t.Errorf("State.TTL = %v, want 10m", cfg.State.TTL)
	}
	if cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("HTTPTimeout = %v, want 10s", cfg.HTTPTimeout)
	}
	if cfg.Storage.Timeout != 5*time.Second {
		t.Errorf("Storage.Timeout = %v, want 5s", cfg.Storage.Timeout)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("Storage.Backend = %q, want memory", cfg.Storage.Backend)
	}
	if cfg.Identity.CookieName != "sb-access-token" {
		t.Errorf("Identity.CookieName = %q", cfg.Identity.CookieName)
	}
	if !cfg.Security.AuditLogging {
		t.Error("AuditLogging should default to true")
	}
	if cfg.LogFormat != "json" || cfg.LogLevel != "info" {
		t.Errorf("log = %s/%s, want json/info", cfg.LogFormat, cfg.LogLevel)
	}
}

func TestLoadConfig_Parses(t *testing.T) {
	cfg, err := LoadConfig(withEnv(map[string]string{
		"INSTAGRAM_SCOPES":      "instagram_business_basic,instagram_business_manage_messages",
		"LINK_STATE_TTL":        "5m",
		"RATE_LIMIT_RPS":        "0.5",
		"TRUST_PROXY":           "true",
		"STORAGE_BACKEND":       "valkey",
		"VALKEY_ADDR":           "localhost:6379",
		"VALKEY_DB":             "2",
		"WEBHOOK_SUBSCRIBE_URL": "https://hooks.example.com/subscribe",
	}))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if len(cfg.Instagram.Scopes) != 2 || cfg.Instagram.Scopes[1] != "instagram_business_manage_messages" {
		t.Errorf("Scopes = %v", cfg.Instagram.Scopes)
	}
	if cfg.State.TTL != 5*time.Minute {
		t.Errorf("State.TTL = %v, want 5m", cfg.State.TTL)
	}
	if cfg.RateLimit.RPS != 0.5 || !cfg.RateLimit.TrustProxy {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Storage.ValkeyDB != 2 {
		t.Errorf("ValkeyDB = %d, want 2", cfg.Storage.ValkeyDB)
	}
	if cfg.WebhookEndpoint() != "https://hooks.example.com/subscribe" {
		t.Errorf("WebhookEndpoint() = %q", cfg.WebhookEndpoint())
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	key, err := security.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		overrides map[string]string
		wantErr   string
	}{
		{name: "missing app URL", overrides: map[string]string{"APP_URL": ""}, wantErr: "APP_URL"},
		{name: "missing app secret", overrides: map[string]string{"INSTAGRAM_APP_SECRET": ""}, wantErr: "INSTAGRAM_APP_SECRET"},
		{name: "short state secret", overrides: map[string]string{"LINK_STATE_SECRET": "short"}, wantErr: "Secret"},
		{name: "http app URL", overrides: map[string]string{"APP_URL": "http://app.example.com"}, wantErr: "HTTPS"},
		{name: "no identity source", overrides: map[string]string{"IDENTITY_URL": ""}, wantErr: "IDENTITY_URL or IDENTITY_JWT_SECRET"},
		{name: "identity URL without key", overrides: map[string]string{"IDENTITY_SERVICE_KEY": "", "WEBHOOK_DISABLED": "true"}, wantErr: "IDENTITY_SERVICE_KEY"},
		{name: "unknown backend", overrides: map[string]string{"STORAGE_BACKEND": "mongo"}, wantErr: "Backend"},
		{name: "postgres without DSN", overrides: map[string]string{"STORAGE_BACKEND": "postgres"}, wantErr: "POSTGRES_DSN"},
		{name: "valkey without address", overrides: map[string]string{"STORAGE_BACKEND": "valkey"}, wantErr: "VALKEY_ADDR"},
		{name: "bad encryption key", overrides: map[string]string{"LINK_ENCRYPTION_KEY": "bm90LWEta2V5"}, wantErr: "LINK_ENCRYPTION_KEY"},
		{name: "bad log format", overrides: map[string]string{"LOG_FORMAT": "xml"}, wantErr: "LogFormat"},
		{name: "bad duration", overrides: map[string]string{"LINK_STATE_TTL": "soon"}, wantErr: "duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(withEnv(tt.overrides))
			if err == nil {
				t.Fatal("LoadConfig() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}

	t.Run("valid encryption key", func(t *testing.T) {
		cfg, err := LoadConfig(withEnv(map[string]string{"LINK_ENCRYPTION_KEY": security.KeyToBase64(key)}))
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		got, err := cfg.EncryptionKeyBytes()
		if err != nil || len(got) != security.KeySize {
			t.Errorf("EncryptionKeyBytes() = %d bytes, %v", len(got), err)
		}
	})
}

func TestConfig_JWTIdentityWithoutWebhook(t *testing.T) {
	_, err := LoadConfig(withEnv(map[string]string{
		"IDENTITY_URL":         "",
		"IDENTITY_SERVICE_KEY": "",
		"IDENTITY_JWT_SECRET":  "jwt-secret",
		"WEBHOOK_DISABLED":     "true",
	}))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
}

func TestValidateAppURL(t *testing.T) {
	tests := []struct {
		url           string
		allowInsecure bool
		wantErr       bool
	}{
		{url: "https://app.example.com"},
		{url: "http://localhost:3000"},
		{url: "http://127.0.0.1:3000"},
		{url: "http://127.8.0.1"},
		{url: "http://[::1]:3000"},
		{url: "http://0.0.0.0:3000"},
		{url: "http://app.example.com", wantErr: true},
		{url: "http://app.example.com", allowInsecure: true},
		{url: "http://10.0.0.5", wantErr: true},
		{url: "ftp://app.example.com", wantErr: true},
		{url: "ftp://app.example.com", allowInsecure: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := validateAppURL(tt.url, tt.allowInsecure)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAppURL(%q, %v) error = %v, wantErr %v", tt.url, tt.allowInsecure, err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Derived(t *testing.T) {
	cfg, err := LoadConfig(withEnv(map[string]string{"APP_URL": "https://app.example.com/"}))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if got, want := cfg.RedirectURL(), "https://app.example.com/api/auth/instagram/callback"; got != want {
		t.Errorf("RedirectURL() = %q, want %q", got, want)
	}
	if got, want := cfg.WebhookEndpoint(), "https://app.example.com/functions/v1/instagram-webhook/subscribe"; got != want {
		t.Errorf("WebhookEndpoint() = %q, want %q", got, want)
	}

	key1, err := cfg.StateKey()
	if err != nil {
		t.Fatalf("StateKey() error = %v", err)
	}
	key2, _ := cfg.StateKey()
	if string(key1) != string(key2) || len(key1) != security.KeySize {
		t.Error("StateKey() should be deterministic and KeySize long")
	}

	if key, err := cfg.EncryptionKeyBytes(); key != nil || err != nil {
		t.Errorf("EncryptionKeyBytes() without key = %v, %v", key, err)
	}

	sc := cfg.ServerConfig()
	if sc.StoreTimeout != 5*time.Second || sc.DisableWebhook || sc.AllowUnboundState {
		t.Errorf("ServerConfig() = %+v", sc)
	}
}
