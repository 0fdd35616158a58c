// Package app assembles the console's components from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ashureev/chatbot-console/internal/api"
	"github.com/ashureev/chatbot-console/internal/config"
	"github.com/ashureev/chatbot-console/internal/conversation"
	"github.com/ashureev/chatbot-console/internal/domain"
	"github.com/ashureev/chatbot-console/internal/middleware"
	"github.com/ashureev/chatbot-console/internal/remote"
	"github.com/ashureev/chatbot-console/internal/session"
	"github.com/ashureev/chatbot-console/internal/store"
	"github.com/ashureev/chatbot-console/internal/stream"
	"github.com/ashureev/chatbot-console/internal/upload"
	"github.com/ashureev/chatbot-console/internal/widget"
	"github.com/ashureev/chatbot-console/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// App holds the wired components.
type App struct {
	Config       *config.Config
	Store        store.SessionStore
	Remote       *remote.Client
	Sessions     *session.Manager
	Conversation *conversation.Synchronizer
	Widget       *widget.Client
	Uploader     *upload.Uploader
	Hub          *stream.Hub

	logger *slog.Logger
}

// Open opens the local store and wires every component to it. The persisted
// session is restored before Open returns.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("store health check: %w", err)
	}

	client := remote.New(cfg.RemoteBaseURL,
		remote.WithTimeout(cfg.HTTPTimeout),
		remote.WithLogger(logger),
	)
	return assemble(ctx, cfg, repo, client, logger), nil
}

func assemble(ctx context.Context, cfg *config.Config, repo store.SessionStore, client *remote.Client, logger *slog.Logger) *App {
	sessions := session.NewManager(repo, client, logger)
	conv := conversation.New(client, sessions, logger)
	a := &App{
		Config:       cfg,
		Store:        repo,
		Remote:       client,
		Sessions:     sessions,
		Conversation: conv,
		Widget:       widget.New(client, sessions, cfg.WidgetUserID, logger),
		Uploader:     upload.New(client, sessions, logger),
		Hub:          stream.NewHub(logger),
		logger:       logger,
	}

	conv.OnChange(func(snap conversation.Snapshot) {
		a.Hub.Broadcast(stream.SnapshotMessage(snap))
	})
	sessions.OnChange(func(sess domain.Session) {
		if sess.Present() {
			return
		}
		conv.Reset()
		go a.Hub.CloseAll("signed out")
	})

	sessions.Restore(ctx)
	return a
}

// View returns the screen for the current session.
func (a *App) View() domain.View {
	return a.Sessions.Current().View()
}

// Router builds the HTTP handler serving the API, the transcript stream and
// the embedded frontend.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(a.Config.AllowedOrigins))

	h := api.NewHandler(a.Sessions, a.Conversation, a.Widget, a.Uploader, a.Store, a.logger)
	h.RegisterRoutes(r)

	ws := stream.NewHandler(a.Hub, a.Conversation, a.Config.AllowedOrigins, a.Config.IsDevelopment(), a.logger)
	r.With(middleware.RequireSession(a.Sessions)).Get("/ws/transcript", ws.ServeHTTP)

	r.Handle("/*", web.SPAHandler())
	return r
}

// Close releases the local store.
func (a *App) Close() error {
	a.Hub.CloseAll("shutting down")
	return a.Store.Close()
}
