package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/instagram-link/security"
	"github.com/giantswarm/instagram-link/session"
)

// MockTime provides a controllable time source for deterministic testing
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// TestKey returns a fixed KeySize key. Never use outside tests.
func TestKey() []byte {
	key := make([]byte, security.KeySize)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

// NewStateCodec returns a codec signing with TestKey and reading time from now.
func NewStateCodec(t *testing.T, now func() time.Time) *security.StateCodec {
	t.Helper()
	codec, err := security.NewStateCodec(TestKey(), security.WithStateClock(now))
	if err != nil {
		t.Fatalf("NewStateCodec() error = %v", err)
	}
	return codec
}

// IssueState mints a state for subject or fails the test.
func IssueState(t *testing.T, codec *security.StateCodec, subject string) string {
	t.Helper()
	state, err := codec.Issue(subject)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return state
}

// StaticSessions resolves credentials from a fixed credential -> user id map.
// An empty credential yields session.ErrNoSession, an unknown one
// session.ErrInvalidSession.
func StaticSessions(users map[string]string) session.ResolverFunc {
	return func(_ context.Context, credential string) (*session.UserSession, error) {
		if credential == "" {
			return nil, session.ErrNoSession
		}
		userID, ok := users[credential]
		if !ok {
			return nil, fmt.Errorf("%w: unknown credential", session.ErrInvalidSession)
		}
		return &session.UserSession{UserID: userID, SessionToken: credential}, nil
	}
}

// NewMockHTTPServer starts a test HTTP server closed when the test ends.
func NewMockHTTPServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CaptureLogger returns a JSON logger writing to w at debug level.
func CaptureLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
