package api

import (
	"net/http"

	"github.com/ashureev/chatbot-console/internal/domain"
)

// GetWidget returns the widget snapshot, fetching it on first use.
func (h *Handler) GetWidget(w http.ResponseWriter, r *http.Request) {
	if !h.widgets.Loaded() || r.URL.Query().Get("refresh") == "true" {
		if _, err := h.widgets.Fetch(r.Context()); err != nil {
			Fail(w, err)
			return
		}
	}
	JSON(w, http.StatusOK, h.widgets.Cached())
}

// SaveWidget stores new widget settings and returns the refreshed snapshot.
func (h *Handler) SaveWidget(w http.ResponseWriter, r *http.Request) {
	var cfg domain.WidgetConfig
	if !decodeBody(w, r, &cfg) {
		return
	}
	msg, err := h.widgets.SaveConfig(r.Context(), cfg)
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"message":  msg,
		"snapshot": h.widgets.Cached(),
	})
}

type domainRequest struct {
	Domain string `json:"domain"`
}

// AddDomain allows the widget on another origin.
func (h *Handler) AddDomain(w http.ResponseWriter, r *http.Request) {
	var req domainRequest
	if !decodeBody(w, r, &req) {
		return
	}
	msg, err := h.widgets.AddDomain(r.Context(), req.Domain)
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"message": msg})
}

// PostUpload adds a document to the knowledge base.
func (h *Handler) PostUpload(w http.ResponseWriter, r *http.Request) {
	var u domain.Upload
	if !decodeBody(w, r, &u) {
		return
	}
	msg, err := h.uploads.Upload(r.Context(), u.Filename, u.Data)
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"message": msg})
}
