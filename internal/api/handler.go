// Package api provides HTTP handlers for the console API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/chatbot-console/internal/conversation"
	"github.com/ashureev/chatbot-console/internal/domain"
	"github.com/ashureev/chatbot-console/internal/store"
)

const maxRequestBody = 1 << 20

// Sessions is the session surface the API drives.
type Sessions interface {
	Current() domain.Session
	Credential() (string, error)
	Authenticate(ctx context.Context, username, password string, mode domain.AuthMode) (domain.AuthResult, error)
	Clear(ctx context.Context)
}

// Conversation is the transcript surface the API drives.
type Conversation interface {
	Snapshot() conversation.Snapshot
	LoadHistory(ctx context.Context) ([]domain.Turn, error)
	TrySend(ctx context.Context, text string) (<-chan struct{}, error)
}

// Widgets is the widget settings surface the API drives.
type Widgets interface {
	Cached() domain.WidgetSnapshot
	Loaded() bool
	Fetch(ctx context.Context) (domain.WidgetSnapshot, error)
	SaveConfig(ctx context.Context, cfg domain.WidgetConfig) (string, error)
	AddDomain(ctx context.Context, origin string) (string, error)
}

// Uploads is the knowledge upload surface the API drives.
type Uploads interface {
	Upload(ctx context.Context, filename, data string) (string, error)
}

// Handler serves the local console API.
type Handler struct {
	sessions     Sessions
	conversation Conversation
	widgets      Widgets
	uploads      Uploads
	repo         store.SessionStore
	logger       *slog.Logger
}

// NewHandler creates a new Handler with its dependencies.
func NewHandler(sessions Sessions, conv Conversation, widgets Widgets, uploads Uploads, repo store.SessionStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions:     sessions,
		conversation: conv,
		widgets:      widgets,
		uploads:      uploads,
		repo:         repo,
		logger:       logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeBody reads a JSON request body of at most maxRequestBody bytes.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps a component error to the response status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNoSession), errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, domain.ErrInvalidUpload),
		errors.Is(err, domain.ErrInvalidDomain):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

// Fail writes err with its mapped status and user-facing text.
func Fail(w http.ResponseWriter, err error) {
	Error(w, statusFor(err), domain.Notice(err))
}
