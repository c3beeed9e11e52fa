package mockserver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/code-tutor/tutor/internal/metrics"
	"github.com/code-tutor/tutor/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// ErrTooManyConnections is returned by Hub.Add once the limit is reached.
var ErrTooManyConnections = errors.New("too many connections")

const (
	clientSendBuffer = 64
	controlTimeout   = time.Second
)

type client struct {
	conn      *websocket.Conn
	id        string
	send      chan []byte
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, id string) *client {
	c := &client{
		conn: conn,
		id:   id,
		send: make(chan []byte, clientSendBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Hub tracks connected clients.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	maxConns int
}

// NewHub creates a hub. maxConns <= 0 means unlimited.
func NewHub(maxConns int) *Hub {
	return &Hub{
		clients:  make(map[*client]bool),
		maxConns: maxConns,
	}
}

func (h *Hub) Add(conn *websocket.Conn, id string) (*client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.maxConns > 0 && len(h.clients) >= h.maxConns {
		return nil, ErrTooManyConnections
	}
	c := newClient(conn, id)
	h.clients[c] = true
	metrics.MockConnections.Set(float64(len(h.clients)))
	return c, nil
}

func (h *Hub) Remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	metrics.MockConnections.Set(float64(len(h.clients)))
	h.mu.Unlock()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send queues msg for c. A client that cannot keep up is dropped.
func (h *Hub) Send(c *client, msg protocol.Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		go h.Remove(c)
		return false
	}
}

// DisconnectAll sends every client a going-away close frame, as a server
// restart would.
func (h *Hub) DisconnectAll() int {
	return h.each(func(c *client) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server restart")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlTimeout))
		c.conn.Close()
	})
}

// DropAll closes every client's socket without a close frame.
func (h *Hub) DropAll() int {
	return h.each(func(c *client) {
		c.conn.Close()
	})
}

func (h *Hub) each(fn func(*client)) int {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		fn(c)
	}
	return len(clients)
}
