// Package websocket streams engine events (render outcomes, rotation and
// override transitions) to connected dashboard clients.
package websocket

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-display-go/internal/core/metrics"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     *logrus.Logger
	metrics    *metrics.Collector

	mu    sync.RWMutex
	stats HubStats
}

// HubStats contains hub statistics.
type HubStats struct {
	ConnectedClients int       `json:"connected_clients"`
	TotalConnections int64     `json:"total_connections"`
	MessagesSent     int64     `json:"messages_sent"`
	LastActivity     time.Time `json:"last_activity"`
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		stats:      HubStats{LastActivity: time.Now()},
	}
}

// SetCollector attaches the metrics collector. Call before Run.
func (h *Hub) SetCollector(c *metrics.Collector) {
	h.metrics = c
}

// Run handles client registration, unregistration, and broadcasting. It
// blocks until the process exits, so call it from its own goroutine.
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Broadcast queues a message for every connected client. A full broadcast
// channel drops the message rather than blocking the engine.
func (h *Hub) Broadcast(message Message) {
	select {
	case h.broadcast <- message.ToJSON():
	default:
		h.logger.Warn("Broadcast channel is full, message dropped")
	}
}

// BroadcastEvent is an engine.EventFunc adapter.
func (h *Hub) BroadcastEvent(event string, data map[string]interface{}) {
	h.Broadcast(Message{Type: event, Data: data})
}

// GetStats returns a snapshot of hub statistics.
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	h.stats.TotalConnections++
	h.stats.ConnectedClients = len(h.clients)
	h.stats.LastActivity = time.Now()
	if h.metrics != nil {
		h.metrics.RecordWebSocketConnection(1)
	}

	h.logger.WithFields(logrus.Fields{
		"client_id": client.ID,
		"clients":   len(h.clients),
	}).Info("WebSocket client connected")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.stats.ConnectedClients = len(h.clients)
	h.stats.LastActivity = time.Now()
	if h.metrics != nil {
		h.metrics.RecordWebSocketConnection(-1)
	}

	h.logger.WithFields(logrus.Fields{
		"client_id": client.ID,
		"clients":   len(h.clients),
	}).Info("WebSocket client disconnected")
}

func (h *Hub) broadcastMessage(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- message:
			h.stats.MessagesSent++
		default:
			// Slow client, drop it.
			delete(h.clients, client)
			close(client.send)
			if h.metrics != nil {
				h.metrics.RecordWebSocketConnection(-1)
			}
		}
	}
	h.stats.ConnectedClients = len(h.clients)
	h.stats.LastActivity = time.Now()
}
