package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/giantswarm/instagram-link/security"
	"github.com/giantswarm/instagram-link/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "instagram-link:"

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// maxRecordSize bounds a stored credential record
	maxRecordSize = 16 * 1024
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "instagram-link:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of storage.CredentialStore.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
	encryptor *security.Encryptor
	logger    *slog.Logger
	now       func() time.Time
}

var _ storage.CredentialStore = (*Store)(nil)

type credentialRecord struct {
	UserID         string    `json:"user_id"`
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	AccessToken    string    `json:"access_token"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// New connects to Valkey and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Address,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: cfg.TLS,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionVerifyTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", cfg.Address, err)
	}

	s := NewWithClient(client, cfg.KeyPrefix)
	if cfg.Logger != nil {
		s.logger = cfg.Logger
	}
	s.logger.Info("Connected to Valkey", "address", cfg.Address, "db", cfg.DB)
	return s, nil
}

// NewWithClient wraps an existing client. An empty prefix uses DefaultKeyPrefix.
func NewWithClient(client redis.UniversalClient, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Store{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    slog.Default(),
		now:       time.Now,
	}
}

// SetEncryptor configures encryption of access tokens at rest.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.encryptor = enc
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Close closes the client connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) credentialKey(userID, provider string) string {
	return s.keyPrefix + "credential:" + provider + ":" + userID
}

// UpsertCredential implements storage.CredentialStore
func (s *Store) UpsertCredential(ctx context.Context, cred *storage.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cred.Validate(); err != nil {
		return err
	}

	sealed, err := storage.EncryptCredential(s.encryptor, cred)
	if err != nil {
		return err
	}
	if sealed.UpdatedAt.IsZero() {
		sealed.UpdatedAt = s.now()
	}

	data, err := json.Marshal(credentialRecord{
		UserID:         sealed.UserID,
		Provider:       sealed.Provider,
		ProviderUserID: sealed.ProviderUserID,
		AccessToken:    sealed.AccessToken,
		TokenExpiresAt: sealed.TokenExpiresAt.UTC(),
		UpdatedAt:      sealed.UpdatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	if err := s.client.Set(ctx, s.credentialKey(cred.UserID, cred.Provider), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// GetCredential implements storage.CredentialStore
func (s *Store) GetCredential(ctx context.Context, userID, provider string) (*storage.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.credentialKey(userID, provider)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: user %q provider %q", storage.ErrCredentialNotFound, userID, provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	if len(data) > maxRecordSize {
		return nil, fmt.Errorf("credential record exceeds %d bytes", maxRecordSize)
	}

	var rec credentialRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}

	cred := &storage.Credential{
		UserID:         rec.UserID,
		Provider:       rec.Provider,
		ProviderUserID: rec.ProviderUserID,
		AccessToken:    rec.AccessToken,
		TokenExpiresAt: rec.TokenExpiresAt,
		UpdatedAt:      rec.UpdatedAt,
	}
	if err := storage.DecryptCredential(s.encryptor, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// DeleteCredential implements storage.CredentialStore
func (s *Store) DeleteCredential(ctx context.Context, userID, provider string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.credentialKey(userID, provider)).Err(); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
