package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCredentialNotFound is returned when no credential exists for the key
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrInvalidCredential is returned when a credential fails validation before writing
	ErrInvalidCredential = errors.New("invalid credential")
)

const (
	// MaxIDLength is the maximum allowed length for identifiers (user, provider, provider user)
	MaxIDLength = 256

	// MaxTokenLength is the maximum allowed length for an access token
	MaxTokenLength = 4096
)

// Credential is a third-party access credential owned by a first-party user.
// At most one credential exists per (UserID, Provider).
type Credential struct {
	UserID         string
	Provider       string
	ProviderUserID string
	AccessToken    string
	TokenExpiresAt time.Time
	UpdatedAt      time.Time
}

// Validate checks the fields required for a write.
func (c *Credential) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: credential is nil", ErrInvalidCredential)
	}
	switch {
	case c.UserID == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidCredential)
	case c.Provider == "":
		return fmt.Errorf("%w: provider is required", ErrInvalidCredential)
	case c.ProviderUserID == "":
		return fmt.Errorf("%w: provider user id is required", ErrInvalidCredential)
	case c.AccessToken == "":
		return fmt.Errorf("%w: access token is required", ErrInvalidCredential)
	case c.TokenExpiresAt.IsZero():
		return fmt.Errorf("%w: token expiry is required", ErrInvalidCredential)
	}
	if len(c.UserID) > MaxIDLength || len(c.Provider) > MaxIDLength || len(c.ProviderUserID) > MaxIDLength {
		return fmt.Errorf("%w: identifier exceeds %d bytes", ErrInvalidCredential, MaxIDLength)
	}
	if len(c.AccessToken) > MaxTokenLength {
		return fmt.Errorf("%w: access token exceeds %d bytes", ErrInvalidCredential, MaxTokenLength)
	}
	return nil
}

// IsExpired reports whether the token has expired at now.
func (c *Credential) IsExpired(now time.Time) bool {
	return !now.Before(c.TokenExpiresAt)
}

// CredentialStore persists credentials keyed by (user, provider).
// All methods accept context.Context for tracing and cancellation.
type CredentialStore interface {
	// UpsertCredential inserts or atomically replaces the credential for
	// (cred.UserID, cred.Provider). A failed call leaves no partial state.
	UpsertCredential(ctx context.Context, cred *Credential) error

	// GetCredential returns ErrCredentialNotFound when nothing is stored.
	GetCredential(ctx context.Context, userID, provider string) (*Credential, error)

	// DeleteCredential removes a credential. Deleting a missing credential is not an error.
	DeleteCredential(ctx context.Context, userID, provider string) error
}
