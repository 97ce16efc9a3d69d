// Package sqlite provides a SQLite-backed storage.CredentialStore using the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/giantswarm/instagram-link/security"
	"github.com/giantswarm/instagram-link/storage"
)

//go:embed schema.sql
var schema string

// Store persists credentials in a SQLite database.
type Store struct {
	db        *sql.DB
	encryptor *security.Encryptor
	logger    *slog.Logger
	now       func() time.Time
}

var _ storage.CredentialStore = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows one writer; a single connection keeps upserts serialized.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: slog.Default(),
		now:    time.Now,
	}, nil
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

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertCredential implements storage.CredentialStore
func (s *Store) UpsertCredential(ctx context.Context, cred *storage.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
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

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO linked_credentials
		   (user_id, provider, provider_user_id, access_token, token_expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, provider) DO UPDATE SET
		   provider_user_id = excluded.provider_user_id,
		   access_token = excluded.access_token,
		   token_expires_at = excluded.token_expires_at,
		   updated_at = excluded.updated_at`,
		sealed.UserID,
		sealed.Provider,
		sealed.ProviderUserID,
		sealed.AccessToken,
		toMillis(sealed.TokenExpiresAt),
		toMillis(sealed.UpdatedAt),
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
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var (
		cred      storage.Credential
		expiresAt int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, provider, provider_user_id, access_token, token_expires_at, updated_at
		 FROM linked_credentials
		 WHERE user_id = ? AND provider = ?`,
		userID, provider,
	).Scan(&cred.UserID, &cred.Provider, &cred.ProviderUserID, &cred.AccessToken, &expiresAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %q provider %q", storage.ErrCredentialNotFound, userID, provider)
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}

	cred.TokenExpiresAt = fromMillis(expiresAt)
	cred.UpdatedAt = fromMillis(updatedAt)
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
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM linked_credentials WHERE user_id = ? AND provider = ?`,
		userID, provider,
	); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
