package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"streeteats/internal/config"
	"streeteats/internal/infra"
	"streeteats/migrations"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "streeteats-api",
		Short:         "Street Eats order lifecycle and fulfillment API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml); STREETEATS_* env vars override it")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, stale-order reaper, assignment sweeper and event publisher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, infra.NewLogger(cfg.Development()))
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger := infra.NewLogger(cfg.Development())
			db, err := infra.NewDB(cmd.Context(), cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrations.Apply(cmd.Context(), db); err != nil {
				return err
			}
			names, _ := migrations.Names()
			logger.Info().Strs("applied", names).Msg("migrations applied")
			return nil
		},
	}

	root.AddCommand(serve, migrate)
	// serve is the default when no subcommand is given
	root.RunE = serve.RunE
	root.SetContext(context.Background())
	return root
}
