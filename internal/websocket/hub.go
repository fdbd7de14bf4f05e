package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Event is pushed to every client subscribed to the inbox once a message is
// persisted.
type Event struct {
	Type      string    `json:"type"`
	InboxID   string    `json:"inboxId"`
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}
			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				return true
			}
			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

type client struct {
	id      string
	inboxID string
	conn    *websocket.Conn
	// send is never closed. Removal signals done instead, so a notifier
	// holding a stale snapshot of the subscriber set can still send without
	// hitting a closed channel.
	send chan []byte
	done chan struct{}
	once sync.Once
	hub  *Hub
}

// teardown signals writePump and closes the connection. Safe to call from
// any goroutine, any number of times.
func (c *client) teardown() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Hub fans persisted-message events out to WebSocket clients, one
// subscription per connection, keyed by inbox.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[string]*client // inboxID -> clientID -> client
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub creates the fan-out hub.
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]map[string]*client),
		upgrader: newUpgrader(allowedOrigins),
		log:      log,
	}
}

// NotifyNewMessage pushes the event to every client watching the inbox.
// Non-blocking: a client that cannot keep up is disconnected.
func (h *Hub) NotifyNewMessage(inboxID, messageID string) {
	payload, err := json.Marshal(Event{
		Type:      "new_message",
		InboxID:   inboxID,
		MessageID: messageID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[inboxID]))
	for _, c := range h.clients[inboxID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- payload:
		default:
			h.remove(c)
		}
	}
}

// Handler upgrades the connection and subscribes it to the inbox in the
// :id path parameter. The inbox ID is not checked against the registry; a
// subscription to an unknown or expired inbox simply never receives events.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		inboxID := c.Param("id")

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		cl := &client{
			id:      uuid.NewString(),
			inboxID: inboxID,
			conn:    conn,
			send:    make(chan []byte, 16),
			done:    make(chan struct{}),
			hub:     h,
		}
		h.add(cl)

		go cl.writePump()
		go cl.readPump()
	}
}

// Shutdown closes every connection.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	var all []*client
	for _, clients := range h.clients {
		for _, c := range clients {
			all = append(all, c)
		}
	}
	h.clients = make(map[string]map[string]*client)
	h.mu.Unlock()

	for _, c := range all {
		c.teardown()
	}
}

// ClientCount returns the number of clients watching the inbox.
func (h *Hub) ClientCount(inboxID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[inboxID])
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.inboxID] == nil {
		h.clients[c.inboxID] = make(map[string]*client)
	}
	h.clients[c.inboxID][c.id] = c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if clients, ok := h.clients[c.inboxID]; ok {
		delete(clients, c.id)
		if len(clients) == 0 {
			delete(h.clients, c.inboxID)
		}
	}
	h.mu.Unlock()
	c.teardown()
}

// readPump discards inbound frames; the channel is push-only. It exists to
// process control frames and detect the peer going away.
func (c *client) readPump() {
	defer c.hub.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
