package valkey

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/giantswarm/instagram-link/security"
	"github.com/giantswarm/instagram-link/storage"
	"github.com/giantswarm/instagram-link/storage/storagetest"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client, "test:"), mr
}

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.CredentialStore {
		s, _ := newTestStore(t)
		return s
	})
}

func TestNew_MissingAddress(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Error("New() without address returned nil error")
	}
}

func TestNew_ConnectsAndPings(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := New(context.Background(), Config{Address: mr.Addr()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = s.Close() }()

	if s.keyPrefix != DefaultKeyPrefix {
		t.Errorf("keyPrefix = %q, want %q", s.keyPrefix, DefaultKeyPrefix)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestNew_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := New(context.Background(), Config{Address: addr}); err == nil {
		t.Error("New() against closed server returned nil error")
	}
}

func TestStore_KeyLayout(t *testing.T) {
	s, mr := newTestStore(t)
	if err := s.UpsertCredential(context.Background(), storagetest.NewCredential("user-1")); err != nil {
		t.Fatalf("UpsertCredential() error = %v", err)
	}

	raw, err := mr.Get("test:credential:instagram:user-1")
	if err != nil {
		t.Fatalf("key not found: %v", err)
	}
	if !strings.Contains(raw, `"provider_user_id":"ig-user-1"`) {
		t.Errorf("stored record = %s", raw)
	}
}

func TestStore_EncryptsAtRest(t *testing.T) {
	s, mr := newTestStore(t)
	key, err := security.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	enc, err := security.NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}
	s.SetEncryptor(enc)

	ctx := context.Background()
	if err := s.UpsertCredential(ctx, storagetest.NewCredential("user-1")); err != nil {
		t.Fatalf("UpsertCredential() error = %v", err)
	}

	raw, err := mr.Get("test:credential:instagram:user-1")
	if err != nil {
		t.Fatalf("key not found: %v", err)
	}
	if strings.Contains(raw, "long-lived-user-1") {
		t.Error("access token stored in plaintext")
	}

	got, err := s.GetCredential(ctx, "user-1", "instagram")
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if got.AccessToken != "long-lived-user-1" {
		t.Errorf("AccessToken = %q, want decrypted value", got.AccessToken)
	}
}

func TestStore_CorruptRecord(t *testing.T) {
	s, mr := newTestStore(t)
	if err := mr.Set("test:credential:instagram:user-1", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.GetCredential(context.Background(), "user-1", "instagram"); err == nil {
		t.Error("GetCredential() of corrupt record returned nil error")
	}
}
