package session

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessTokenClaims mirrors the identity service access token.
type accessTokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// JWTOption configures a JWTResolver.
type JWTOption func(*JWTResolver)

// WithAudience requires the token audience to contain aud.
func WithAudience(aud string) JWTOption {
	return func(r *JWTResolver) {
		r.audience = aud
	}
}

// WithClock sets the time source used to validate exp/nbf/iat.
func WithClock(now func() time.Time) JWTOption {
	return func(r *JWTResolver) {
		if now != nil {
			r.now = now
		}
	}
}

// JWTResolver verifies identity service access tokens locally.
type JWTResolver struct {
	secret   []byte
	audience string
	now      func() time.Time
	parser   *jwt.Parser
}

var _ Resolver = (*JWTResolver)(nil)

// NewJWTResolver creates a resolver that verifies HS256 tokens signed with secret.
func NewJWTResolver(secret []byte, opts ...JWTOption) (*JWTResolver, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("JWT secret is required")
	}

	r := &JWTResolver{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Second),
		jwt.WithTimeFunc(r.now),
	}
	if r.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(r.audience))
	}
	r.parser = jwt.NewParser(parserOpts...)
	return r, nil
}

// Resolve verifies credential and returns the user named by its subject.
func (r *JWTResolver) Resolve(_ context.Context, credential string) (*UserSession, error) {
	if credential == "" {
		return nil, ErrNoSession
	}

	claims := &accessTokenClaims{}
	_, err := r.parser.ParseWithClaims(credential, claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidSession)
	}

	return &UserSession{
		UserID:       claims.Subject,
		Email:        claims.Email,
		SessionToken: credential,
	}, nil
}
