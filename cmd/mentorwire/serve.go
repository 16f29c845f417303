package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/mentorwire/internal/app"
	"github.com/vovakirdan/mentorwire/internal/log"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket and REST server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := log.New(cfg.LogLevel, cfg.LogFile)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting mentorwire server")
			if err := application.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.overrides.Addr, "addr", "", "HTTP listen address")
	f.StringVar(&opts.overrides.DatabasePath, "db", "", "SQLite database path")
	f.DurationVar(&opts.overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	f.DurationVar(&opts.overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	f.DurationVar(&opts.overrides.RingTimeout, "ring-timeout", 0, "how long an unanswered call rings")
	f.StringVar(&opts.overrides.AMQPURL, "amqp-url", "", "AMQP broker URL for audit events")
	f.StringVar(&opts.overrides.LogFile, "log-file", "", "write logs to this rotated file")
	return cmd
}
