package app

import (
	"context"
	"fmt"
	stdhttp "net/http"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/liveroom-server/internal/auth"
	"github.com/vovakirdan/liveroom-server/internal/config"
	"github.com/vovakirdan/liveroom-server/internal/core"
	applog "github.com/vovakirdan/liveroom-server/internal/log"
	"github.com/vovakirdan/liveroom-server/internal/media"
	"github.com/vovakirdan/liveroom-server/internal/media/livekit"
	"github.com/vovakirdan/liveroom-server/internal/store"
	"github.com/vovakirdan/liveroom-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/liveroom-server/internal/transport/http"
	"github.com/vovakirdan/liveroom-server/internal/tutor"
)

// App wires together core and transport layers.
type App struct {
	cfg    config.Config
	server *stdhttp.Server
	hub    *core.Hub
	store  store.Store
	log    *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	// Initialize database store
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	hub := core.NewHub(st, core.Options{
		IdleTimeout:  cfg.IdleTimeout,
		HistoryLimit: cfg.HistoryLimit,
	}, logger)

	var answerer core.Answerer
	if cfg.AI.URL != "" {
		answerer = tutor.NewClient(cfg.AI.URL, cfg.AI.Timeout, logger)
		logger.Info().Str("url", cfg.AI.URL).Msg("tutor service configured")
	} else {
		logger.Warn().Msg("no tutor service configured, questions get the fallback answer")
	}

	router := core.NewRouter(hub, st, answerer, core.RouterOptions{
		AITimeout: cfg.AI.Timeout,
		Fallback:  cfg.AI.Fallback,
	}, logger)

	deps := transporthttp.Deps{
		Hub:     hub,
		Router:  router,
		Records: st,
	}
	if cfg.JWT.Secret != "" {
		deps.Verifier = auth.NewVerifier(cfg.JWT)
	} else if cfg.JWT.Required {
		_ = st.Close()
		return nil, fmt.Errorf("jwt.required is set but jwt.secret is empty")
	} else {
		logger.Warn().Msg("jwt.secret is empty, only anonymous connections are accepted")
	}

	if engine := newMediaEngine(cfg.LiveKit, logger); engine != nil {
		deps.Media = engine
	}

	server := transporthttp.NewServer(deps, *cfg, logger)

	return &App{
		cfg:    *cfg,
		server: server,
		hub:    hub,
		store:  st,
		log:    logger,
	}, nil
}

func newMediaEngine(cfg config.LiveKitConfig, logger *zerolog.Logger) media.Engine {
	if !cfg.Enabled {
		return nil
	}
	log := applog.Component(logger, "media")
	if cfg.APIKey == "" || cfg.APISecret == "" {
		log.Warn().Msg("livekit enabled without api key or secret, media endpoint disabled")
		return nil
	}
	log.Info().Str("url", cfg.URL).Msg("livekit media enabled")
	return livekit.New(cfg.APIKey, cfg.APISecret, cfg.URL)
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hub.Run(hubCtx)

	go func() {
		a.log.Info().Str("addr", a.cfg.Addr).Msg("listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup(context.Background())
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// Hijacked WebSocket connections are not tracked by Shutdown; the hub drains them.
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup(shutdownCtx)
			return err
		}

		a.cleanup(shutdownCtx)
		return <-serverErr
	}
}

// cleanup drains live connections, then closes the database.
func (a *App) cleanup(ctx context.Context) {
	if err := a.hub.Shutdown(ctx); err != nil {
		a.log.Warn().Err(err).Msg("hub shutdown incomplete")
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
