// Package mock provides a mock implementation of providers.TokenExchanger for testing.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/giantswarm/instagram-link/providers"
)

// MockProvider is a mock implementation of the TokenExchanger interface for testing
type MockProvider struct {
	// NameFunc is called when Name() is invoked
	NameFunc func() string

	// AuthorizationURLFunc is called when AuthorizationURL() is invoked
	AuthorizationURLFunc func(state string) string

	// ExchangeCodeFunc is called when ExchangeCode() is invoked
	ExchangeCodeFunc func(ctx context.Context, code string) (*providers.ProviderToken, error)

	// ExchangeLongLivedFunc is called when ExchangeLongLived() is invoked
	ExchangeLongLivedFunc func(ctx context.Context, shortLivedToken string) (*providers.LongLivedToken, error)

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	mu sync.RWMutex
}

var _ providers.TokenExchanger = (*MockProvider)(nil)

// NewMockProvider creates a mock whose exchanges succeed with fixed tokens.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		CallCounts: make(map[string]int),
		NameFunc: func() string {
			return "instagram"
		},
		AuthorizationURLFunc: func(state string) string {
			return "https://mock.example.com/oauth/authorize?state=" + state
		},
		ExchangeCodeFunc: func(ctx context.Context, code string) (*providers.ProviderToken, error) {
			return &providers.ProviderToken{
				AccessToken:    "mock-short-lived-token",
				TokenType:      "bearer",
				ProviderUserID: "17841400000000001",
			}, nil
		},
		ExchangeLongLivedFunc: func(ctx context.Context, shortLivedToken string) (*providers.LongLivedToken, error) {
			return &providers.LongLivedToken{
				AccessToken: "mock-long-lived-token",
				TokenType:   "bearer",
				ExpiresIn:   5184000,
				ExpiresAt:   time.Now().Add(5184000 * time.Second),
			}, nil
		},
	}
}

// Name returns the provider name
func (m *MockProvider) Name() string {
	// Release the lock before calling fn; it may call other mock methods.
	m.mu.Lock()
	m.CallCounts["Name"]++
	fn := m.NameFunc
	m.mu.Unlock()

	if fn == nil {
		return "mock"
	}
	return fn()
}

// AuthorizationURL returns the URL that starts a flow
func (m *MockProvider) AuthorizationURL(state string) string {
	m.mu.Lock()
	m.CallCounts["AuthorizationURL"]++
	fn := m.AuthorizationURLFunc
	m.mu.Unlock()
	if fn == nil {
		return "https://mock.example.com/oauth/authorize?state=" + state
	}
	return fn(state)
}

// ExchangeCode exchanges an authorization code for a short-lived token
func (m *MockProvider) ExchangeCode(ctx context.Context, code string) (*providers.ProviderToken, error) {
	m.mu.Lock()
	m.CallCounts["ExchangeCode"]++
	fn := m.ExchangeCodeFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("ExchangeCodeFunc not configured")
	}
	return fn(ctx, code)
}

// ExchangeLongLived exchanges a short-lived token for a long-lived one
func (m *MockProvider) ExchangeLongLived(ctx context.Context, shortLivedToken string) (*providers.LongLivedToken, error) {
	m.mu.Lock()
	m.CallCounts["ExchangeLongLived"]++
	fn := m.ExchangeLongLivedFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("ExchangeLongLivedFunc not configured")
	}
	return fn(ctx, shortLivedToken)
}

// ResetCallCounts resets all call counters
func (m *MockProvider) ResetCallCounts() {
	m.mu.Lock()
	m.CallCounts = make(map[string]int)
	m.mu.Unlock()
}

// GetCallCount returns the number of times a method was called
func (m *MockProvider) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}
