package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/ashureev/chatbot-console/internal/conversation"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Transcript is the conversation state a stream client observes and drives.
type Transcript interface {
	Snapshot() conversation.Snapshot
	SetDraft(text string)
	TrySend(ctx context.Context, text string) (<-chan struct{}, error)
}

// Message is the envelope exchanged over the socket.
type Message struct {
	Type     string                 `json:"type"`
	Content  string                 `json:"content,omitempty"`
	Snapshot *conversation.Snapshot `json:"snapshot,omitempty"`
}

// SnapshotMessage wraps a transcript snapshot for the wire.
func SnapshotMessage(snap conversation.Snapshot) Message {
	return Message{Type: "snapshot", Snapshot: &snap}
}

// Handler upgrades requests to transcript streams.
type Handler struct {
	hub            *Hub
	transcript     Transcript
	originPatterns []string
	isDev          bool
	logger         *slog.Logger
}

// NewHandler creates a stream handler. allowedOrigins are full origins such
// as https://app.example, or "*".
func NewHandler(hub *Hub, transcript Transcript, allowedOrigins []string, isDev bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:            hub,
		transcript:     transcript,
		originPatterns: originPatterns(allowedOrigins),
		isDev:          isDev,
		logger:         logger,
	}
}

func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return patterns
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.originPatterns,
		InsecureSkipVerify: h.isDev,
	})
	if err != nil {
		h.logger.Warn("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	id := uuid.NewString()
	out := h.hub.Register(id, ws)
	defer h.hub.Unregister(id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.hub.Send(id, SnapshotMessage(h.transcript.Snapshot()))

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		h.inputLoop(ctx, ws, id)
	}()

	go func() {
		defer wg.Done()
		defer cancel()
		h.outputLoop(ctx, ws, out, id)
	}()

	wg.Wait()
	h.logger.Info("Stream ended", "client_id", id)
}

func (h *Handler) inputLoop(ctx context.Context, ws *websocket.Conn, id string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("WebSocket closed by client", "client_id", id)
			} else if ctx.Err() == nil {
				h.logger.Warn("WebSocket read error", "error", err, "client_id", id)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.hub.Send(id, Message{Type: "error", Content: "invalid message"})
			continue
		}

		switch msg.Type {
		case "ping":
			h.hub.Send(id, Message{Type: "pong"})
		case "draft":
			h.transcript.SetDraft(msg.Content)
		case "send":
			if _, err := h.transcript.TrySend(ctx, msg.Content); err != nil {
				h.hub.Send(id, Message{Type: "error", Content: err.Error()})
			}
		default:
			h.hub.Send(id, Message{Type: "error", Content: "unknown message type"})
		}
	}
}

func (h *Handler) outputLoop(ctx context.Context, ws *websocket.Conn, out <-chan []byte, id string) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-out:
			if !ok {
				return
			}
			if err := writeMessage(ctx, ws, data); err != nil {
				if ctx.Err() == nil {
					h.logger.Debug("WebSocket write error", "error", err, "client_id", id)
				}
				return
			}
		}
	}
}
