package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/chatbot-console/internal/app"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the local web UI and API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(os.Stdout)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeApp(a)

			slog.Info("Starting console", "port", cfg.Port, "remote", cfg.RemoteBaseURL, "view", a.View())

			if a.Sessions.Current().Present() {
				go func() {
					if _, err := a.Conversation.LoadHistory(context.WithoutCancel(ctx)); err != nil {
						slog.Warn("History unavailable at startup", "error", err)
					}
				}()
			}

			// Stream connections are long-lived, so no WriteTimeout.
			srv := &http.Server{
				Addr:         ":" + cfg.Port,
				Handler:      a.Router(),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 0,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("Server listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}
			stop()

			slog.Info("Shutting down gracefully...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}

			slog.Info("Server stopped successfully")
			return nil
		},
	}
}
