package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat-server/internal/auth"
	"github.com/vovakirdan/pairchat-server/internal/config"
	"github.com/vovakirdan/pairchat-server/internal/core"
	"github.com/vovakirdan/pairchat-server/internal/store"
	"github.com/vovakirdan/pairchat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/pairchat-server/internal/transport/http"
)

// App wires together the core, store and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	svc             *core.Service
	pairer          *transporthttp.Pairer
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with the provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authSvc := auth.NewService(st, jwtConfig)

	svc := core.NewService(st, logger)
	channels := transporthttp.NewChannelHub()
	pairer := transporthttp.NewPairer(svc, channels, cfg.PairingInterval, logger)
	server := transporthttp.NewServer(svc, authSvc, channels, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		svc:             svc,
		pairer:          pairer,
		store:           st,
		log:             logger,
	}, nil
}

// Run rehydrates the cache, starts the pairing loop and the HTTP server, and
// blocks until context cancellation or a fatal error.
func (a *App) Run(ctx context.Context) error {
	if err := a.svc.Bootstrap(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("bootstrap: %w", err)
	}

	go a.pairer.Run(ctx)

	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
