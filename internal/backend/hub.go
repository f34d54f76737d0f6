package backend

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raysh454/fastscan/internal/logging"
)

const writeWait = 5 * time.Second

// statsHub fans stats updates out to every connected /ws/stats client.
type statsHub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	logger logging.Logger
}

func newStatsHub(logger logging.Logger) *statsHub {
	return &statsHub{conns: make(map[*websocket.Conn]struct{}), logger: logger}
}

func (h *statsHub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *statsHub) remove(c *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		c.Close()
	}
	h.mu.Unlock()
}

// broadcast writes v to every client, dropping the ones that fail.
func (h *statsHub) broadcast(v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteJSON(v); err != nil {
			h.logger.Debug("dropping stats subscriber", logging.Field{Key: "error", Value: err.Error()})
			delete(h.conns, c)
			c.Close()
		}
	}
}

func (h *statsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		c.Close()
		delete(h.conns, c)
	}
}
