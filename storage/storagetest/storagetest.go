// Package storagetest provides a conformance suite that every
// storage.CredentialStore backend runs from its own tests.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/giantswarm/instagram-link/storage"
)

// Factory returns an empty store. Cleanup should be registered on t.
type Factory func(t *testing.T) storage.CredentialStore

// baseTime is aligned to milliseconds, the coarsest precision of any backend.
var baseTime = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

// NewCredential returns a valid credential for userID.
func NewCredential(userID string) *storage.Credential {
	return &storage.Credential{
		UserID:         userID,
		Provider:       "instagram",
		ProviderUserID: "ig-" + userID,
		AccessToken:    "long-lived-" + userID,
		TokenExpiresAt: baseTime.Add(60 * 24 * time.Hour),
		UpdatedAt:      baseTime,
	}
}

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("UpsertThenGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		want := NewCredential("user-1")

		if err := store.UpsertCredential(ctx, want); err != nil {
			t.Fatalf("UpsertCredential() error = %v", err)
		}
		got, err := store.GetCredential(ctx, "user-1", "instagram")
		if err != nil {
			t.Fatalf("GetCredential() error = %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("GetCredential() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetCredential(context.Background(), "nobody", "instagram")
		if !errors.Is(err, storage.ErrCredentialNotFound) {
			t.Errorf("GetCredential() error = %v, want ErrCredentialNotFound", err)
		}
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		first := NewCredential("user-1")
		if err := store.UpsertCredential(ctx, first); err != nil {
			t.Fatalf("first UpsertCredential() error = %v", err)
		}

		second := NewCredential("user-1")
		second.ProviderUserID = "ig-relinked"
		second.AccessToken = "rotated-token"
		second.TokenExpiresAt = baseTime.Add(90 * 24 * time.Hour)
		second.UpdatedAt = baseTime.Add(time.Hour)
		if err := store.UpsertCredential(ctx, second); err != nil {
			t.Fatalf("second UpsertCredential() error = %v", err)
		}

		got, err := store.GetCredential(ctx, "user-1", "instagram")
		if err != nil {
			t.Fatalf("GetCredential() error = %v", err)
		}
		if diff := cmp.Diff(second, got); diff != "" {
			t.Errorf("GetCredential() after replace mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("IdempotentReplay", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		cred := NewCredential("user-1")

		for i := 0; i < 3; i++ {
			if err := store.UpsertCredential(ctx, cred); err != nil {
				t.Fatalf("UpsertCredential() #%d error = %v", i, err)
			}
		}
		got, err := store.GetCredential(ctx, "user-1", "instagram")
		if err != nil {
			t.Fatalf("GetCredential() error = %v", err)
		}
		if diff := cmp.Diff(cred, got); diff != "" {
			t.Errorf("GetCredential() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("ProvidersAreIndependent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		ig := NewCredential("user-1")
		other := NewCredential("user-1")
		other.Provider = "other"
		other.AccessToken = "other-token"

		for _, c := range []*storage.Credential{ig, other} {
			if err := store.UpsertCredential(ctx, c); err != nil {
				t.Fatalf("UpsertCredential(%s) error = %v", c.Provider, err)
			}
		}
		if err := store.DeleteCredential(ctx, "user-1", "other"); err != nil {
			t.Fatalf("DeleteCredential() error = %v", err)
		}

		got, err := store.GetCredential(ctx, "user-1", "instagram")
		if err != nil {
			t.Fatalf("GetCredential() error = %v", err)
		}
		if got.AccessToken != ig.AccessToken {
			t.Errorf("AccessToken = %q, want %q", got.AccessToken, ig.AccessToken)
		}
		if _, err := store.GetCredential(ctx, "user-1", "other"); !errors.Is(err, storage.ErrCredentialNotFound) {
			t.Errorf("GetCredential(other) error = %v, want ErrCredentialNotFound", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if err := store.UpsertCredential(ctx, NewCredential("user-1")); err != nil {
			t.Fatalf("UpsertCredential() error = %v", err)
		}
		if err := store.DeleteCredential(ctx, "user-1", "instagram"); err != nil {
			t.Fatalf("DeleteCredential() error = %v", err)
		}
		if _, err := store.GetCredential(ctx, "user-1", "instagram"); !errors.Is(err, storage.ErrCredentialNotFound) {
			t.Errorf("GetCredential() after delete error = %v, want ErrCredentialNotFound", err)
		}
		if err := store.DeleteCredential(ctx, "user-1", "instagram"); err != nil {
			t.Errorf("DeleteCredential() of missing credential error = %v", err)
		}
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		tests := []struct {
			name   string
			mutate func(c *storage.Credential)
		}{
			{"empty user", func(c *storage.Credential) { c.UserID = "" }},
			{"empty provider", func(c *storage.Credential) { c.Provider = "" }},
			{"empty provider user", func(c *storage.Credential) { c.ProviderUserID = "" }},
			{"empty token", func(c *storage.Credential) { c.AccessToken = "" }},
			{"zero expiry", func(c *storage.Credential) { c.TokenExpiresAt = time.Time{} }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				cred := NewCredential("user-invalid")
				tt.mutate(cred)
				err := store.UpsertCredential(ctx, cred)
				if !errors.Is(err, storage.ErrInvalidCredential) {
					t.Errorf("UpsertCredential() error = %v, want ErrInvalidCredential", err)
				}
			})
		}
		if _, err := store.GetCredential(ctx, "user-invalid", "instagram"); !errors.Is(err, storage.ErrCredentialNotFound) {
			t.Errorf("invalid credential was stored: %v", err)
		}
	})

	t.Run("CanceledContext", func(t *testing.T) {
		store := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := store.UpsertCredential(ctx, NewCredential("user-1")); err == nil {
			t.Error("UpsertCredential() with canceled context returned nil error")
		}
	})

	t.Run("ConcurrentUpserts", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		const writers = 8
		tokens := make(map[string]bool, writers)
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			cred := NewCredential("user-1")
			cred.AccessToken = fmt.Sprintf("token-%d", i)
			tokens[cred.AccessToken] = true

			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- store.UpsertCredential(ctx, cred)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("concurrent UpsertCredential() error = %v", err)
			}
		}

		got, err := store.GetCredential(ctx, "user-1", "instagram")
		if err != nil {
			t.Fatalf("GetCredential() error = %v", err)
		}
		if !tokens[got.AccessToken] {
			t.Errorf("AccessToken = %q, want one of the written tokens", got.AccessToken)
		}
	})
}
