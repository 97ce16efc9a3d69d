package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	link "github.com/giantswarm/instagram-link"
	"github.com/giantswarm/instagram-link/internal/testutil"
	"github.com/giantswarm/instagram-link/security"
	"github.com/giantswarm/instagram-link/storage/storagetest"
)

func TestOpenStore(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		storage link.StorageConfig
	}{
		{name: "memory", storage: link.StorageConfig{Backend: link.BackendMemory}},
		{name: "sqlite", storage: link.StorageConfig{Backend: link.BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "links.db")}},
		{name: "valkey", storage: link.StorageConfig{Backend: link.BackendValkey, ValkeyAddr: mr.Addr()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &link.Config{Storage: tt.storage}
			opened, err := openStore(context.Background(), cfg, nil, testutil.DiscardLogger())
			if err != nil {
				t.Fatalf("openStore() error = %v", err)
			}
			t.Cleanup(opened.close)

			if opened.ping != nil {
				if err := opened.ping(context.Background()); err != nil {
					t.Errorf("ping() error = %v", err)
				}
			}

			cred := storagetest.NewCredential("U1")
			if err := opened.store.UpsertCredential(context.Background(), cred); err != nil {
				t.Fatalf("UpsertCredential() error = %v", err)
			}
			got, err := opened.store.GetCredential(context.Background(), "U1", cred.Provider)
			if err != nil {
				t.Fatalf("GetCredential() error = %v", err)
			}
			if got.AccessToken != cred.AccessToken {
				t.Errorf("AccessToken = %q, want %q", got.AccessToken, cred.AccessToken)
			}
		})
	}
}

func TestOpenStore_EncryptsAtRest(t *testing.T) {
	key, err := security.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	enc, err := security.NewEncryptor(key)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &link.Config{Storage: link.StorageConfig{Backend: link.BackendMemory}}
	opened, err := openStore(context.Background(), cfg, enc, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}

	cred := storagetest.NewCredential("U1")
	if err := opened.store.UpsertCredential(context.Background(), cred); err != nil {
		t.Fatalf("UpsertCredential() error = %v", err)
	}
	got, err := opened.store.GetCredential(context.Background(), "U1", cred.Provider)
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if got.AccessToken != cred.AccessToken {
		t.Errorf("AccessToken = %q, want decrypted %q", got.AccessToken, cred.AccessToken)
	}
}

func TestOpenStore_Unreachable(t *testing.T) {
	cfg := &link.Config{Storage: link.StorageConfig{Backend: link.BackendValkey, ValkeyAddr: "127.0.0.1:1"}}
	if _, err := openStore(context.Background(), cfg, nil, testutil.DiscardLogger()); err == nil {
		t.Error("openStore() expected error for unreachable valkey")
	}
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			for _, format := range []string{"json", "text"} {
				logger := setupLogger(format, tt.level)
				if !logger.Enabled(context.Background(), tt.want) {
					t.Errorf("%s logger not enabled at %v", format, tt.want)
				}
				if tt.want > slog.LevelDebug && logger.Enabled(context.Background(), tt.want-4) {
					t.Errorf("%s logger enabled below %v", format, tt.want)
				}
			}
		})
	}
}
