package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrNoSession is returned when no session credential was presented
	ErrNoSession = errors.New("no session")

	// ErrInvalidSession is returned when a credential was presented but could
	// not be resolved (expired, malformed, revoked or rejected upstream)
	ErrInvalidSession = errors.New("invalid session")
)

// DefaultCookieName is the cookie that carries the identity service access token
const DefaultCookieName = "sb-access-token"

// UserSession is the authenticated first-party user behind a request.
type UserSession struct {
	UserID       string
	Email        string
	SessionToken string
}

// Resolver maps a session credential to a user.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (*UserSession, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, credential string) (*UserSession, error)

// Resolve calls f(ctx, credential).
func (f ResolverFunc) Resolve(ctx context.Context, credential string) (*UserSession, error) {
	return f(ctx, credential)
}

// CredentialFromRequest returns the session credential from the named cookie,
// falling back to an Authorization bearer token. It returns "" when neither
// is present.
func CredentialFromRequest(r *http.Request, cookieName string) string {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}

	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}
