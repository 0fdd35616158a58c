package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ashureev/chatbot-console/internal/conversation"
	"github.com/ashureev/chatbot-console/internal/domain"
	"github.com/ashureev/chatbot-console/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the console API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/view", h.GetView)
		r.Get("/session", h.GetSession)
		r.Post("/session", h.CreateSession)
		r.Delete("/session", h.DeleteSession)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(h.sessions))
			r.Get("/transcript", h.GetTranscript)
			r.Post("/transcript/reload", h.ReloadTranscript)
			r.Post("/messages", h.PostMessage)
			r.Get("/widget", h.GetWidget)
			r.Post("/widget", h.SaveWidget)
			r.Post("/domains", h.AddDomain)
			r.Post("/uploads", h.PostUpload)
		})
	})
}

// GetView returns which screen the client should show.
func (h *Handler) GetView(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"view": string(h.sessions.Current().View())})
}

// GetSession reports whether a session is held. The credential is never
// returned.
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	sess := h.sessions.Current()
	JSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": sess.Present(),
		"view":          sess.View(),
	})
}

type sessionRequest struct {
	Username string          `json:"username"`
	Password string          `json:"password"`
	Mode     domain.AuthMode `json:"mode"`
}

// CreateSession logs in or signs up. A login also starts loading history.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Mode == "" {
		req.Mode = domain.AuthModeLogin
	}
	if !req.Mode.Valid() {
		Error(w, http.StatusBadRequest, "mode must be login or signup")
		return
	}

	res, err := h.sessions.Authenticate(r.Context(), req.Username, req.Password, req.Mode)
	if err != nil {
		var authErr *domain.AuthError
		status := http.StatusUnauthorized
		if errors.As(err, &authErr) && authErr.Err == nil {
			status = http.StatusBadRequest
		}
		Error(w, status, domain.Notice(err))
		return
	}

	if res.Outcome == domain.SessionEstablished {
		go h.loadHistory(context.WithoutCancel(r.Context()))
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"outcome": res.Outcome.String(),
		"notice":  res.Notice,
		"view":    res.Session.View(),
	})
}

func (h *Handler) loadHistory(ctx context.Context) {
	_, err := h.conversation.LoadHistory(ctx)
	if err != nil && !errors.Is(err, conversation.ErrHistoryLoading) && !errors.Is(err, conversation.ErrTranscriptReset) {
		h.logger.Warn("Initial history load failed", "error", err)
	}
}

// DeleteSession logs out.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// GetTranscript returns the current transcript snapshot.
func (h *Handler) GetTranscript(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.conversation.Snapshot())
}

// ReloadTranscript replaces the transcript with the remote history.
func (h *Handler) ReloadTranscript(w http.ResponseWriter, r *http.Request) {
	if _, err := h.conversation.LoadHistory(r.Context()); err != nil {
		if errors.Is(err, conversation.ErrHistoryLoading) || errors.Is(err, conversation.ErrTranscriptReset) {
			Error(w, http.StatusConflict, err.Error())
			return
		}
		Error(w, statusFor(err), "History unavailable")
		return
	}
	JSON(w, http.StatusOK, h.conversation.Snapshot())
}

type messageRequest struct {
	Text string `json:"text"`
}

// PostMessage starts sending a message. The outcome arrives on the
// transcript stream.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := h.conversation.TrySend(r.Context(), req.Text); err != nil {
		status := http.StatusConflict
		switch {
		case errors.Is(err, domain.ErrNoSession):
			status = http.StatusUnauthorized
		case errors.Is(err, domain.ErrEmptyMessage):
			status = http.StatusBadRequest
		}
		Error(w, status, err.Error())
		return
	}
	JSON(w, http.StatusAccepted, h.conversation.Snapshot())
}
