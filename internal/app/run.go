package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// serve runs the gateway, the odds poller and the HTTP server in one group.
// The first failure cancels the others.
func (a *App) serve(ctx context.Context, c *Components) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := c.Gateway.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		c.Poller.Start(ctx)
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return c.Poller.Stop(stopCtx)
	})

	g.Go(func() error {
		return c.Server.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down")
		return c.Server.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		a.logger.Error("relay stopped with error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
