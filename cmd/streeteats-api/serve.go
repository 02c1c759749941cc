package main

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"streeteats/internal/config"
	httptransport "streeteats/internal/http"
)

func runServe(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	server := httptransport.NewServer(cfg.HTTP.Addr, a.router, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx) })
	g.Go(func() error {
		a.orders.RunTimeoutMonitor(ctx)
		return nil
	})
	g.Go(func() error {
		a.sweeper.Run(ctx)
		return nil
	})
	g.Go(func() error {
		a.notifier.Run(ctx)
		return nil
	})
	if a.mailer != nil {
		g.Go(func() error {
			a.mailer.Run(ctx)
			return nil
		})
	}

	logger.Info().
		Str("store", cfg.Store.Mode).
		Str("dispatch", cfg.Dispatch.Policy).
		Strs("transports", cfg.Events.Transports).
		Msg("streeteats-api started")
	err = g.Wait()
	ev := logger.Info().Int64("events_dropped", a.notifier.Dropped())
	if a.mailer != nil {
		ev = ev.Int64("mail_dropped", a.mailer.Dropped())
	}
	ev.Msg("streeteats-api stopped")
	return err
}
