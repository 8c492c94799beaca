package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/rotawire/internal/broker"
	"github.com/vovakirdan/rotawire/internal/config"
	"github.com/vovakirdan/rotawire/internal/core"
	"github.com/vovakirdan/rotawire/internal/store"
	"github.com/vovakirdan/rotawire/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/rotawire/internal/transport/http"
)

// App wires together storage, fan-out, core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.EventStore
	broker          core.Broker
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	var br core.Broker
	if cfg.RedisAddr != "" {
		redisBroker, err := broker.NewRedis(ctx, broker.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
		}, logger)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("init broker: %w", err)
		}
		br = redisBroker
	} else {
		logger.Info().Msg("redis_addr not set, events fan out to this node only")
	}

	hub := core.NewHub(br, logger)
	server := transporthttp.NewServer(hub, st, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		broker:          br,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hub.Run(hubCtx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopHub()
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

// cleanup closes the broker and the database.
func (a *App) cleanup() {
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close broker")
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
