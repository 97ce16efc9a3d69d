package server

import (
	"log/slog"
	"time"
)

// DefaultStoreTimeout bounds a credential upsert.
const DefaultStoreTimeout = 5 * time.Second

// Config holds account-link flow configuration
type Config struct {
	// StoreTimeout bounds the credential upsert. The upsert is detached from
	// request cancellation, so this is the only limit on it.
	// Default: 5s
	StoreTimeout time.Duration

	// DisableWebhook skips the webhook subscription stage even when a
	// subscriber is configured.
	// Default: false
	DisableWebhook bool

	// AllowUnboundState accepts states whose subject does not match the
	// resolved session user.
	// WARNING: a state minted for one user can then complete a link for another.
	// Default: false
	AllowUnboundState bool
}

// applyDefaults fills zero values and logs warnings for risky settings
func applyDefaults(config *Config, logger *slog.Logger) *Config {
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = DefaultStoreTimeout
	}
	if config.AllowUnboundState {
		logger.Warn("SECURITY WARNING: state subject binding is DISABLED",
			"risk", "A state issued to one user can complete a link for another",
			"recommendation", "Leave AllowUnboundState=false")
	}
	return config
}
