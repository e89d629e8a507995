package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calendar/config"
	"calendar/db"
	"calendar/handlers"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the calendar HTTP server.

Configuration comes from the --config file, a .env file and CALENDAR_*
environment variables. --host and --port override the listen address.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.ListenIP = host
			}
			if port != 0 {
				cfg.ListenPort = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen address (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	return cmd
}

// runServer serves until ctx is cancelled, then drains in-flight requests.
func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	docs, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := docs.Close(); err != nil {
			logger.Error().Err(err).Msg("closing storage")
		}
	}()

	srv, err := handlers.NewServer(cfg, logger, docs)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("addr", server.Addr).
			Str("storage", cfg.Storage).
			Str("data_dir", cfg.DataDir).
			Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info().Msg("server stopped")
		return nil
	})
	return g.Wait()
}
