// Package app provides the top-level application lifecycle of the prediction
// market service. It wires together the ledger backend, market, oracle, event
// sinks, keeper, archiver and HTTP API and runs them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predictmarket/internal/config"
	"github.com/alanyoungcy/predictmarket/internal/server"
	"github.com/alanyoungcy/predictmarket/internal/server/handler"
)

const shutdownTimeout = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the service goroutines and blocks until
// the context is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("storage", a.cfg.Storage.Backend),
		slog.String("oracle", a.cfg.Oracle.Backend),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	err = a.serve(ctx, deps)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) serve(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Dispatcher.Run(ctx)
	})
	g.Go(func() error {
		return deps.Hub.Run(ctx)
	})

	if k := deps.Keeper; k != nil {
		autostart := a.cfg.Keeper.Autostart
		g.Go(func() error {
			return k.Run(ctx, autostart)
		})
	}

	if arc := deps.Archiver; arc != nil {
		expr := a.cfg.Archive.Cron
		g.Go(func() error {
			return arc.RunCron(ctx, expr)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	a.logger.InfoContext(ctx, "application running",
		slog.String("market", deps.Market.Config().Address.Hex()),
		slog.Bool("keeper", deps.Keeper != nil),
		slog.Bool("archive", deps.Archiver != nil),
		slog.Bool("http", a.cfg.Server.Enabled),
	)
	return g.Wait()
}

// startHTTPServer adds the HTTP server goroutine to g. The server is shut
// down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Checks, a.logger),
		Market:    handler.NewMarketHandler(deps.Market, deps.Receivers, a.logger),
		Ownership: handler.NewOwnershipHandler(deps.Owners, a.logger),
		Token:     handler.NewTokenHandler(deps.Token, a.logger),
	}
	if deps.Keeper != nil {
		handlers.Keeper = handler.NewKeeperHandler(deps.Keeper, deps.Owners, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		APIKey:        a.cfg.Server.APIKey,
		SignatureSkew: a.cfg.Server.SignatureSkew.Duration,
		RateLimit:     a.cfg.Server.RateLimit,
		RateWindow:    a.cfg.Server.RateWindow.Duration,
		ReplayGuard:   deps.ReplayGuard,
	}, handlers, deps.Hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
