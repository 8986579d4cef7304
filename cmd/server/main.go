package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bcnelson/labgroups/internal/api"
	"github.com/bcnelson/labgroups/internal/auth"
	"github.com/bcnelson/labgroups/internal/config"
	"github.com/bcnelson/labgroups/internal/i18n"
	"github.com/bcnelson/labgroups/internal/logger"
	"github.com/bcnelson/labgroups/internal/service"
	"github.com/bcnelson/labgroups/internal/storage/sql"
	"github.com/bcnelson/labgroups/internal/validation"
	"github.com/bcnelson/labgroups/internal/web"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Create data directory if needed (for SQLite)
	if cfg.Database.Driver == "sqlite3" {
		if dir := filepath.Dir(cfg.Database.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create data directory: %w", err)
			}
		}
	}

	// Initialize storage
	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer store.Close()

	catalog, err := i18n.New(cfg.UI.Language)
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}

	groups := service.NewGroupService(store, validation.New(), log.Named("groups"), cfg.UI.PageSize)

	var resolver auth.Resolver = auth.HeaderResolver{Header: cfg.Auth.Header}
	var oidc *web.OIDC
	if cfg.UsesOIDC() {
		oidc, err = newOIDC(cfg)
		if err != nil {
			return err
		}
		resolver = oidc.Sessions
		log.Info("OIDC login enabled", zap.String("issuer", cfg.OIDC.IssuerURL))
	} else {
		log.Info("trusting identity header", zap.String("header", cfg.Auth.Header))
	}

	router := api.NewRouter(groups, catalog, resolver, oidc, log.Named("http"))

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Info("starting labgroups", zap.String("addr", "http://"+cfg.Server.Addr()))

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func newOIDC(cfg *config.Config) (*web.OIDC, error) {
	provider, err := auth.NewOIDCProvider(context.Background(),
		cfg.OIDC.IssuerURL,
		cfg.OIDC.ClientID,
		cfg.OIDC.ClientSecret,
		cfg.OIDC.RedirectURL,
		cfg.OIDC.GetScopes(),
		cfg.OIDC.UsernameClaim,
	)
	if err != nil {
		return nil, err
	}

	key, err := cfg.OIDC.GetSessionSecretBytes()
	if err != nil {
		return nil, err
	}
	sessions, err := auth.NewSessionManager(key, cfg.OIDC.SessionDuration, cfg.OIDC.SecureCookies)
	if err != nil {
		return nil, err
	}
	states, err := auth.NewStateStore(key, cfg.OIDC.SecureCookies)
	if err != nil {
		return nil, err
	}

	return &web.OIDC{Provider: provider, Sessions: sessions, States: states}, nil
}
