// Chatbot Console - local client for the chatbot service.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ashureev/chatbot-console/internal/app"
	"github.com/ashureev/chatbot-console/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "console",
		Short:         "Chat with the bot and manage its widget from the terminal or a local web UI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newAuthCmd("signup", "Create an account", "signup"),
		newAuthCmd("login", "Log in and store the credential", "login"),
		newLogoutCmd(),
		newHistoryCmd(),
		newSendCmd(),
		newWidgetCmd(),
		newDomainCmd(),
		newUploadCmd(),
	)
	return root
}

// loadConfig reads .env, then the environment, and installs a JSON logger
// writing to w.
func loadConfig(w io.Writer) (*config.Config, *slog.Logger, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	if envErr != nil {
		slog.Debug("No .env file found, using environment variables")
	}
	return cfg, logger, nil
}

// openApp wires the components for a one-shot command. Logs go to stderr so
// command output stays clean.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, logger, err := loadConfig(os.Stderr)
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg, logger)
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		slog.Error("Failed to close store", "error", err)
	}
}
