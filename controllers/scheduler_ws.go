package controller

import (
	"log"
	"sync"

	"dripmail/scheduler"

	"github.com/gofiber/websocket/v2"
)

// ProgressHub fans scheduler pass summaries out to connected dashboard
// clients. Slow or dead clients are dropped on write failure.
type ProgressHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	logger  *log.Logger
}

func NewProgressHub(logger *log.Logger) *ProgressHub {
	return &ProgressHub{
		clients: make(map[*websocket.Conn]struct{}),
		logger:  logger,
	}
}

func (h *ProgressHub) Broadcast(summary *scheduler.Summary) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		if err := conn.WriteJSON(summary); err != nil {
			h.logger.Printf("dropping progress client: %v", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Handle keeps the connection registered until the client disconnects.
// Incoming messages are read and discarded so control frames get handled.
func (h *ProgressHub) Handle(c *websocket.Conn) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		c.Close()
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}
