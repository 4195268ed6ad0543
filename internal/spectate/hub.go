// Package spectate streams annotated battle events to websocket
// observers and serves a rendered battle report.
package spectate

import (
	"log/slog"
	"sync"

	"battlepipe/internal/annotate"
)

// Client is one connected observer.
type Client struct {
	ID     string
	Events chan annotate.Event
	Done   chan struct{}
}

// Hub fans annotated events out to every connected client.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	slog.Info("Spectator connected", "clientID", client.ID)
}

// Unregister removes a client. The Done channel is closed by the
// handler that created the client, not here.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[clientID]; ok {
		delete(h.clients, clientID)
		slog.Info("Spectator disconnected", "clientID", clientID)
	}
}

// Broadcast delivers one event to every client. A slow client's full
// channel drops the event for that client only; the battle stream never
// waits for spectators.
func (h *Hub) Broadcast(ev annotate.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.Events <- ev:
		case <-client.Done:
		default:
			slog.Warn("Spectator channel full, dropping event", "clientID", client.ID)
		}
	}
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
