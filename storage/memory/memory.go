package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/giantswarm/instagram-link/security"
	"github.com/giantswarm/instagram-link/storage"
)

type credentialKey struct {
	userID   string
	provider string
}

// Store is an in-memory implementation of storage.CredentialStore.
type Store struct {
	mu          sync.RWMutex
	credentials map[credentialKey]*storage.Credential

	encryptor *security.Encryptor
	logger    *slog.Logger
	now       func() time.Time
}

var _ storage.CredentialStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		credentials: make(map[credentialKey]*storage.Credential),
		logger:      slog.Default(),
		now:         time.Now,
	}
}

// SetEncryptor configures encryption of access tokens at rest.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptor = enc
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// Len returns the number of stored credentials.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.credentials)
}

// UpsertCredential implements storage.CredentialStore
func (s *Store) UpsertCredential(ctx context.Context, cred *storage.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cred.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := storage.EncryptCredential(s.encryptor, cred)
	if err != nil {
		return err
	}
	if sealed.UpdatedAt.IsZero() {
		sealed.UpdatedAt = s.now()
	}

	key := credentialKey{userID: cred.UserID, provider: cred.Provider}
	_, replaced := s.credentials[key]
	s.credentials[key] = sealed

	s.logger.Debug("Stored credential",
		"provider", cred.Provider,
		"replaced", replaced)
	return nil
}

// GetCredential implements storage.CredentialStore
func (s *Store) GetCredential(ctx context.Context, userID, provider string) (*storage.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	stored, ok := s.credentials[credentialKey{userID: userID, provider: provider}]
	enc := s.encryptor
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: user %q provider %q", storage.ErrCredentialNotFound, userID, provider)
	}

	out := *stored
	if err := storage.DecryptCredential(enc, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCredential implements storage.CredentialStore
func (s *Store) DeleteCredential(ctx context.Context, userID, provider string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.credentials, credentialKey{userID: userID, provider: provider})
	return nil
}
