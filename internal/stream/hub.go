// Package stream pushes transcript snapshots to WebSocket clients.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	sendQueueSize = 32
	writeTimeout  = 5 * time.Second
)

type client struct {
	conn *websocket.Conn
	out  chan []byte
}

// Hub tracks active WebSocket connections and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[string]*client),
		logger:  logger,
	}
}

// Register adds conn under id and returns its outbound queue. A connection
// already registered under id is closed.
func (h *Hub) Register(id string, conn *websocket.Conn) <-chan []byte {
	h.mu.Lock()
	existing, replaced := h.clients[id]
	if replaced {
		h.removeLocked(id)
	}
	c := &client{conn: conn, out: make(chan []byte, sendQueueSize)}
	h.clients[id] = c
	count := len(h.clients)
	h.mu.Unlock()

	if replaced {
		shutdown(existing, "connection replaced")
	}
	h.logger.Info("Stream client registered", "client_id", id, "clients", count)
	return c.out
}

// Unregister removes id. It is a no-op for unknown ids.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[id]
	if !ok {
		return
	}
	h.removeLocked(id)
	close(c.out)
	h.logger.Info("Stream client unregistered", "client_id", id, "clients", len(h.clients))
}

// Send queues v for one client.
func (h *Hub) Send(id string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to encode stream message", "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[id]; ok {
		h.enqueue(id, c, data)
	}
}

// Broadcast queues v for every client. Clients whose queue is full miss the
// message; snapshots carry a version so they recover on the next one.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to encode stream message", "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		h.enqueue(id, c, data)
	}
}

func (h *Hub) enqueue(id string, c *client, data []byte) {
	select {
	case c.out <- data:
	default:
		h.logger.Warn("Stream client queue full, dropping message", "client_id", id)
	}
}

// CloseAll closes every connection, e.g. when the session ends.
func (h *Hub) CloseAll(reason string) {
	h.mu.Lock()
	closed := make([]*client, 0, len(h.clients))
	for id, c := range h.clients {
		h.removeLocked(id)
		closed = append(closed, c)
	}
	h.mu.Unlock()

	for _, c := range closed {
		shutdown(c, reason)
	}
	if len(closed) > 0 {
		h.logger.Info("Stream clients closed", "count", len(closed), "reason", reason)
	}
}

func (h *Hub) removeLocked(id string) {
	delete(h.clients, id)
}

// shutdown closes a client already removed from the hub. The close frame goes
// out before the queue is closed so the peer sees the reason.
func shutdown(c *client, reason string) {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, reason)
	}
	close(c.out)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func writeMessage(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
