package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/rotawire/internal/app"
	"github.com/vovakirdan/rotawire/internal/config"
)

var serveAddr string

// serveCmd runs the push server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the push server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.UpdateFrom(config.Config{Addr: serveAddr})
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := app.New(ctx, &cfg, logger)
		if err != nil {
			return err
		}

		logger.Info().Str("addr", cfg.Addr).Msg("starting rotawire server")
		if err := application.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("server exited with error")
			return err
		}
		logger.Info().Msg("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "HTTP listen address")
}
