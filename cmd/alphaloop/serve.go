package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/alphaloop/internal/infrastructure/db"
	httpserver "github.com/sawpanic/alphaloop/internal/interfaces/http"
	"github.com/sawpanic/alphaloop/internal/metrics"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the evaluation API",
		Long:  "Starts the HTTP server with /evaluate, /normalize, /health and /metrics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg

			serverCfg := cfg.Server
			if cmd.Flags().Changed("host") {
				serverCfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				serverCfg.Port = port
			}

			manager, err := db.NewManager(ctx, cfg.Storage.Database)
			if err != nil {
				return err
			}
			defer manager.Close()

			deps := httpserver.Dependencies{
				Gates:          cfg.Gates,
				ReversalWindow: cfg.Window(),
				Normalizer:     cfg.NewNormalizer(),
				Metrics:        metrics.NewRegistry(),
			}
			if manager.IsEnabled() {
				deps.Storage = manager.Health()
			}
			server := httpserver.NewServer(serverCfg, deps)

			errCh := make(chan error, 1)
			go func() {
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("Shutting down HTTP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	return cmd
}
