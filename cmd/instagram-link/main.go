// Command instagram-link serves the Instagram account-link endpoints.
//
// Configuration is read from the environment (and an optional .env file);
// see link.Config for the variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	link "github.com/giantswarm/instagram-link"
	"github.com/giantswarm/instagram-link/instrumentation"
	"github.com/giantswarm/instagram-link/providers/instagram"
	"github.com/giantswarm/instagram-link/security"
	"github.com/giantswarm/instagram-link/server"
	"github.com/giantswarm/instagram-link/session"
	"github.com/giantswarm/instagram-link/storage"
	"github.com/giantswarm/instagram-link/webhook"
)

const shutdownTimeout = 30 * time.Second

// version is set at build time
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("Failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := link.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *link.Config, logger *slog.Logger) error {
	cfg.LogSecurityWarnings(logger)

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:     cfg.Instrumentation.ServiceName,
		ServiceVersion:  version,
		Enabled:         cfg.Instrumentation.Enabled,
		MetricsExporter: cfg.Instrumentation.MetricsExporter,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := inst.Shutdown(shutdownCtx); err != nil {
			logger.Error("Instrumentation shutdown error", "error", err)
		}
	}()

	httpClient := inst.HTTPClient(cfg.HTTPTimeout)

	provider, err := instagram.NewProvider(&instagram.Config{
		ClientID:       cfg.Instagram.AppID,
		ClientSecret:   cfg.Instagram.AppSecret,
		RedirectURL:    cfg.RedirectURL(),
		Scopes:         cfg.Instagram.Scopes,
		AuthURL:        cfg.Instagram.AuthURL,
		TokenURL:       cfg.Instagram.TokenURL,
		GraphURL:       cfg.Instagram.GraphURL,
		RequestTimeout: cfg.HTTPTimeout,
		HTTPClient:     httpClient,
	})
	if err != nil {
		return fmt.Errorf("failed to create instagram provider: %w", err)
	}

	resolver, err := newSessionResolver(cfg, httpClient, logger)
	if err != nil {
		return err
	}

	stateKey, err := cfg.StateKey()
	if err != nil {
		return fmt.Errorf("failed to derive state key: %w", err)
	}
	states, err := security.NewStateCodec(stateKey, security.WithStateTTL(cfg.State.TTL))
	if err != nil {
		return fmt.Errorf("failed to create state codec: %w", err)
	}

	encKey, err := cfg.EncryptionKeyBytes()
	if err != nil {
		return fmt.Errorf("invalid encryption key: %w", err)
	}
	encryptor, err := security.NewEncryptor(encKey)
	if err != nil {
		return fmt.Errorf("failed to create encryptor: %w", err)
	}

	backend, err := openStore(ctx, cfg, encryptor, logger)
	if err != nil {
		return err
	}
	defer backend.close()
	store := storage.NewInstrumentedStore(backend.store, cfg.Storage.Backend, inst)

	srv, err := server.New(provider, states, resolver, store, cfg.ServerConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to create link server: %w", err)
	}
	srv.SetInstrumentation(inst)
	srv.SetAuditor(security.NewAuditor(logger, cfg.Security.AuditLogging))

	if !cfg.Webhook.Disabled {
		subscriber, err := webhook.NewSubscriber(webhook.Config{
			Endpoint:       cfg.WebhookEndpoint(),
			ServiceKey:     cfg.Identity.ServiceKey,
			VerifyToken:    cfg.Webhook.VerifyToken,
			RequestTimeout: cfg.HTTPTimeout,
			HTTPClient:     httpClient,
			Logger:         logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create webhook subscriber: %w", err)
		}
		srv.SetWebhookSubscriber(subscriber)
	}

	handler, err := link.NewHandler(srv, link.HandlerConfig{
		AppURL:     cfg.App.URL,
		CookieName: cfg.Identity.CookieName,
		Proxy:      cfg.ProxyPolicy(),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}
	if cfg.RateLimit.RPS > 0 {
		handler.SetRateLimiter(security.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.MaxEntries, logger))
	}
	handler.SetReadinessCheck(backend.ping)

	var metrics http.Handler
	if cfg.Instrumentation.Enabled && cfg.Instrumentation.MetricsExporter == instrumentation.MetricsExporterPrometheus {
		metrics = inst.MetricsHandler()
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.Routes(metrics),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Instagram link server starting",
			"addr", cfg.ListenAddr,
			"redirect_uri", cfg.RedirectURL(),
			"storage", cfg.Storage.Backend,
			"version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

func newSessionResolver(cfg *link.Config, httpClient *http.Client, logger *slog.Logger) (session.Resolver, error) {
	if cfg.Identity.URL != "" {
		resolver, err := session.NewRemoteResolver(session.RemoteConfig{
			BaseURL:        cfg.Identity.URL,
			APIKey:         cfg.Identity.ServiceKey,
			RequestTimeout: cfg.HTTPTimeout,
			HTTPClient:     httpClient,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create session resolver: %w", err)
		}
		return resolver, nil
	}

	var opts []session.JWTOption
	if cfg.Identity.JWTAudience != "" {
		opts = append(opts, session.WithAudience(cfg.Identity.JWTAudience))
	}
	resolver, err := session.NewJWTResolver([]byte(cfg.Identity.JWTSecret), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create session resolver: %w", err)
	}
	return resolver, nil
}

func setupLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
