// Package mock provides a mock storage.CredentialStore for testing.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/giantswarm/instagram-link/storage"
)

// MockCredentialStore is a mock implementation of storage.CredentialStore.
// Each ...Func field can be replaced; defaults keep credentials in a map.
type MockCredentialStore struct {
	mu          sync.RWMutex
	credentials map[string]*storage.Credential

	UpsertCredentialFunc func(ctx context.Context, cred *storage.Credential) error
	GetCredentialFunc    func(ctx context.Context, userID, provider string) (*storage.Credential, error)
	DeleteCredentialFunc func(ctx context.Context, userID, provider string) error
	CallCounts           map[string]int
}

var _ storage.CredentialStore = (*MockCredentialStore)(nil)

func key(userID, provider string) string {
	return provider + "\x00" + userID
}

// NewMockCredentialStore creates a new mock credential store
func NewMockCredentialStore() *MockCredentialStore {
	m := &MockCredentialStore{
		credentials: make(map[string]*storage.Credential),
		CallCounts:  make(map[string]int),
	}

	m.UpsertCredentialFunc = func(_ context.Context, cred *storage.Credential) error {
		if err := cred.Validate(); err != nil {
			return err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		c := *cred
		m.credentials[key(cred.UserID, cred.Provider)] = &c
		return nil
	}

	m.GetCredentialFunc = func(_ context.Context, userID, provider string) (*storage.Credential, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		c, ok := m.credentials[key(userID, provider)]
		if !ok {
			return nil, fmt.Errorf("%w: user %q", storage.ErrCredentialNotFound, userID)
		}
		out := *c
		return &out, nil
	}

	m.DeleteCredentialFunc = func(_ context.Context, userID, provider string) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.credentials, key(userID, provider))
		return nil
	}

	return m
}

func (m *MockCredentialStore) count(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[name]++
}

// UpsertCredential implements storage.CredentialStore
func (m *MockCredentialStore) UpsertCredential(ctx context.Context, cred *storage.Credential) error {
	m.count("UpsertCredential")
	return m.UpsertCredentialFunc(ctx, cred)
}

// GetCredential implements storage.CredentialStore
func (m *MockCredentialStore) GetCredential(ctx context.Context, userID, provider string) (*storage.Credential, error) {
	m.count("GetCredential")
	return m.GetCredentialFunc(ctx, userID, provider)
}

// DeleteCredential implements storage.CredentialStore
func (m *MockCredentialStore) DeleteCredential(ctx context.Context, userID, provider string) error {
	m.count("DeleteCredential")
	return m.DeleteCredentialFunc(ctx, userID, provider)
}

// GetCallCount returns how many times method was called
func (m *MockCredentialStore) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}

// ResetCallCounts clears recorded call counts
func (m *MockCredentialStore) ResetCallCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts = make(map[string]int)
}

// Len returns the number of credentials held by the default implementation
func (m *MockCredentialStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.credentials)
}
