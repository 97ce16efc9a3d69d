// Package postgres provides a PostgreSQL-backed storage.CredentialStore
// built on a pgx connection pool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/giantswarm/instagram-link/security"
	"github.com/giantswarm/instagram-link/storage"
)

//go:embed schema.sql
var schema string

// Store persists credentials in PostgreSQL.
type Store struct {
	pool      *pgxpool.Pool
	encryptor *security.Encryptor
	logger    *slog.Logger
	now       func() time.Time
}

var _ storage.CredentialStore = (*Store)(nil)

// Open connects to dsn, verifies the connection and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewWithPool(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool wraps an existing pool. The schema is not applied.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		logger: slog.Default(),
		now:    time.Now,
	}
}

// Migrate creates the credentials table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
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

// Close releases the pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO linked_credentials
		   (user_id, provider, provider_user_id, access_token, token_expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, provider) DO UPDATE SET
		   provider_user_id = EXCLUDED.provider_user_id,
		   access_token = EXCLUDED.access_token,
		   token_expires_at = EXCLUDED.token_expires_at,
		   updated_at = EXCLUDED.updated_at`,
		sealed.UserID,
		sealed.Provider,
		sealed.ProviderUserID,
		sealed.AccessToken,
		sealed.TokenExpiresAt.UTC(),
		sealed.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// GetCredential implements storage.CredentialStore
func (s *Store) GetCredential(ctx context.Context, userID, provider string) (*storage.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cred storage.Credential
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, provider, provider_user_id, access_token, token_expires_at, updated_at
		 FROM linked_credentials
		 WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	).Scan(&cred.UserID, &cred.Provider, &cred.ProviderUserID, &cred.AccessToken, &cred.TokenExpiresAt, &cred.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %q provider %q", storage.ErrCredentialNotFound, userID, provider)
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}

	cred.TokenExpiresAt = cred.TokenExpiresAt.UTC()
	cred.UpdatedAt = cred.UpdatedAt.UTC()
	if err := storage.DecryptCredential(s.encryptor, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// DeleteCredential implements storage.CredentialStore
func (s *Store) DeleteCredential(ctx context.Context, userID, provider string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM linked_credentials WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
