package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	link "github.com/giantswarm/instagram-link"
	"github.com/giantswarm/instagram-link/security"
	"github.com/giantswarm/instagram-link/storage"
	"github.com/giantswarm/instagram-link/storage/memory"
	"github.com/giantswarm/instagram-link/storage/postgres"
	"github.com/giantswarm/instagram-link/storage/sqlite"
	"github.com/giantswarm/instagram-link/storage/valkey"
)

// openedStore is a configured backend plus its lifecycle hooks.
type openedStore struct {
	store storage.CredentialStore
	ping  func(context.Context) error
	close func()
}

func openStore(ctx context.Context, cfg *link.Config, enc *security.Encryptor, logger *slog.Logger) (*openedStore, error) {
	switch cfg.Storage.Backend {
	case link.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		store.SetEncryptor(enc)
		store.SetLogger(logger)
		return &openedStore{
			store: store,
			ping:  store.Ping,
			close: func() {
				if err := store.Close(); err != nil {
					logger.Error("Failed to close sqlite store", "error", err)
				}
			},
		}, nil

	case link.BackendPostgres:
		store, err := postgres.Open(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		store.SetEncryptor(enc)
		store.SetLogger(logger)
		return &openedStore{store: store, ping: store.Ping, close: store.Close}, nil

	case link.BackendValkey:
		vcfg := valkey.Config{
			Address:   cfg.Storage.ValkeyAddr,
			Password:  cfg.Storage.ValkeyPassword,
			DB:        cfg.Storage.ValkeyDB,
			KeyPrefix: cfg.Storage.ValkeyKeyPrefix,
			Logger:    logger,
		}
		if cfg.Storage.ValkeyTLS {
			vcfg.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		store, err := valkey.New(ctx, vcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to valkey: %w", err)
		}
		store.SetEncryptor(enc)
		return &openedStore{
			store: store,
			ping:  store.Ping,
			close: func() {
				if err := store.Close(); err != nil {
					logger.Error("Failed to close valkey store", "error", err)
				}
			},
		}, nil

	default:
		logger.Warn("Using in-memory credential store; links are lost on restart")
		store := memory.New()
		store.SetEncryptor(enc)
		store.SetLogger(logger)
		return &openedStore{store: store, close: func() {}}, nil
	}
}
