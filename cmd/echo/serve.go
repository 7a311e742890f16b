package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ent0n29/echo/internal/app"
	"github.com/ent0n29/echo/internal/httpapi"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.BindAddr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}

			httpServer := &http.Server{
				Addr:    cfg.BindAddr,
				Handler: httpapi.New(rt).Router(),
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", cfg.BindAddr).Msg("server listening")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			var serveErr error
			select {
			case <-ctx.Done():
				logger.Info().Msg("shutdown signal received")
			case serveErr = <-errCh:
				logger.Error().Err(serveErr).Msg("listen failed")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("graceful shutdown failed")
				_ = httpServer.Close()
			}
			if err := rt.Close(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("runtime close failed")
			}
			logger.Info().Msg("shutdown complete")
			return serveErr
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "override APP_BIND_ADDR")
	return cmd
}
