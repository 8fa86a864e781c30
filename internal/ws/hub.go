package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"pony-chat-admin/backend/internal/models"
	"pony-chat-admin/backend/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The HTTP layer already enforces allowed origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// unreadEvent is the frame pushed to subscribers when a poll changes counts.
type unreadEvent struct {
	Type     string          `json:"type"`
	Platform models.Platform `json:"platform"`
	Counts   map[string]int  `json:"counts"`
}

type client struct {
	conn     *websocket.Conn
	platform models.Platform
	send     chan []byte
}

// Hub pushes unread-count changes to connected console clients. Clients
// subscribe to one platform; polling remains the source of truth, the push is
// only a hint to refresh sooner.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     log,
	}
}

// PublishUnread implements the syncer's Publisher contract.
func (h *Hub) PublishUnread(platform models.Platform, counts map[string]int) {
	data, err := json.Marshal(unreadEvent{
		Type:     "unread",
		Platform: platform,
		Counts:   counts,
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.platform != platform {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Slow consumer; drop the frame, the next poll resends.
		}
	}
}

// Serve upgrades an HTTP request to a WebSocket subscription for one platform.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, platform models.Platform) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err.Error())
		return
	}

	c := &client{
		conn:     conn,
		platform: platform,
		send:     make(chan []byte, 8),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// readLoop discards inbound frames; the subscription is one-way.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
