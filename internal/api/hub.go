package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

// Message is the JSON envelope for everything sent over the stream.
type Message struct {
	Type    string `json:"type"` // "report", "snapshot" or "finished"
	Payload any    `json:"payload"`
}

// client is one connected stream consumer.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans generation messages out to every connected websocket client.
type Hub struct {
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	clients    map[*client]bool
	count      atomic.Int32
	done       chan struct{}
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]bool),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns when ctx is done, closing every
// client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.count.Store(0)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = true
			h.count.Store(int32(len(h.clients)))
			slog.Debug("stream client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.count.Store(int32(len(h.clients)))
				slog.Debug("stream client disconnected", "clients", len(h.clients))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer; drop it.
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.count.Store(int32(len(h.clients)))
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Publish encodes a message and queues it for every client. It never
// blocks the simulation: when the queue is full the message is dropped.
func (h *Hub) Publish(msgType string, payload any) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		slog.Warn("stream message encode failed", "type", msgType, "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		slog.Warn("stream queue full, message dropped", "type", msgType)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWs upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump discards inbound messages and unregisters on disconnect.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("stream read error", "error", err)
			}
			return
		}
	}
}

// writePump drains the client's queue until the hub closes it.
func (c *client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
