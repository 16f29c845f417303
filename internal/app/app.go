package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/mentorwire/internal/auth"
	"github.com/vovakirdan/mentorwire/internal/config"
	"github.com/vovakirdan/mentorwire/internal/core"
	"github.com/vovakirdan/mentorwire/internal/events"
	"github.com/vovakirdan/mentorwire/internal/store"
	"github.com/vovakirdan/mentorwire/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/mentorwire/internal/transport/http"
)

// tokenTTL is the lifetime of access tokens issued by register and login.
const tokenTTL = 24 * time.Hour

// App wires together store, core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	publisher       events.Publisher
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      tokenTTL,
	})

	publisher := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	logger.Info().Str("mode", events.Mode(publisher)).Msg("audit publisher ready")

	hub := core.NewHub(st, HubOptions(cfg, publisher), logger)
	server := transporthttp.NewServer(hub, st, authService, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		publisher:       publisher,
		log:             logger,
	}, nil
}

// HubOptions maps configuration onto core hub options.
func HubOptions(cfg *config.Config, publisher core.Publisher) core.Options {
	opts := core.Options{
		RingTimeout:     cfg.RingTimeout,
		CallRetention:   cfg.CallRetention,
		SweepSchedule:   cfg.SweepSchedule,
		MaxMessageBytes: int(cfg.MaxMessageBytes),
		EventBuffer:     cfg.EventBuffer,
		Publisher:       publisher,
	}
	if len(cfg.STUNURLs) > 0 {
		opts.ICEServers = []core.ICEServer{{URLs: cfg.STUNURLs}}
	}
	return opts
}

// Run starts the hub and the HTTP server and blocks until ctx is cancelled
// or either fails.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.hub.Run(gctx)
	})

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cleanup closes the broker connection and the database.
func (a *App) cleanup() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close publisher")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
