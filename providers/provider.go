package providers

import (
	"context"
	"errors"
	"time"
)

// ErrExchangeFailed is returned when either token exchange hop fails:
// a transport error, a non-2xx response or a body that fails validation.
var ErrExchangeFailed = errors.New("token exchange failed")

// ProviderToken is the short-lived token returned by the authorization-code exchange.
type ProviderToken struct {
	AccessToken string
	TokenType   string

	// ProviderUserID is the provider's id for the account, kept as the
	// decimal string the provider sent.
	ProviderUserID string

	// Permissions granted, when the provider reports them.
	Permissions []string
}

// LongLivedToken is the token returned by the long-lived exchange.
// It is the only credential that gets persisted.
type LongLivedToken struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
	ExpiresAt   time.Time
}

// TokenExchanger performs the two-hop token exchange against a provider.
type TokenExchanger interface {
	// Name returns the provider name stored alongside credentials
	Name() string

	// AuthorizationURL returns the provider URL that starts a flow carrying state.
	AuthorizationURL(state string) string

	// ExchangeCode exchanges an authorization code for a short-lived token.
	ExchangeCode(ctx context.Context, code string) (*ProviderToken, error)

	// ExchangeLongLived exchanges a short-lived token for a long-lived one.
	ExchangeLongLived(ctx context.Context, shortLivedToken string) (*LongLivedToken, error)
}
