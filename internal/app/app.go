// Package app provides the top-level application lifecycle management for the
// market relay. It wires the ledger client, executor, odds poller and
// websocket gateway together with their optional backing services and runs
// them until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/marketrelay/internal/config"
)

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

// Run wires all dependencies, starts the relay and blocks until the context
// is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Bool("read_only", a.cfg.ReadOnly()),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("postgres", a.cfg.Postgres.Enabled),
	)

	comps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return a.serve(ctx, comps)
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
