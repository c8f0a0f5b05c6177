// server/ws/hub.go
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vinizap/mindmap/server/domain"
)

const (
	TypeReplaced = "mind_map_replaced"

	writeWait      = 5 * time.Second
	clientBuffer   = 32
	broadcastQueue = 256
)

// Conn is the part of a websocket connection the hub needs. Both the fiber
// server-side connection and a gorilla client connection satisfy it.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Message IDs are unique per save, so followers can drop a replacement
// they have already applied no matter which route it came in on.
type Message struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Origin   string           `json:"origin"`
	Document *domain.Document `json:"document,omitempty"`
}

// client is written to only by its own goroutine.
type client struct {
	conn Conn
	send chan Message
}

type Hub struct {
	origin     string
	log        zerolog.Logger
	clients    map[Conn]*client
	broadcast  chan Message
	register   chan Conn
	unregister chan Conn
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a hub that stamps origin on every message it originates.
func NewHub(origin string, log zerolog.Logger) *Hub {
	return &Hub{
		origin:     origin,
		log:        log.With().Str("component", "hub").Logger(),
		clients:    make(map[Conn]*client),
		broadcast:  make(chan Message, broadcastQueue),
		register:   make(chan Conn),
		unregister: make(chan Conn),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Origin() string {
	return h.origin
}

// Run fans messages out to client queues. It never waits on a client: one
// whose queue is full is dropped. Run returns when ctx is cancelled, closing
// every connection still registered.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn, c := range h.clients {
				h.drop(conn, c)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			c := &client{conn: conn, send: make(chan Message, clientBuffer)}
			h.mu.Lock()
			h.clients[conn] = c
			h.mu.Unlock()
			go h.writeLoop(c)

		case conn := <-h.unregister:
			h.mu.Lock()
			if c, ok := h.clients[conn]; ok {
				h.drop(conn, c)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn, c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.log.Warn().Str("type", msg.Type).Msg("websocket client too slow, dropping it")
					h.drop(conn, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(conn Conn, c *client) {
	delete(h.clients, conn)
	close(c.send)
	conn.Close()
}

func (h *Hub) writeLoop(c *client) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			h.log.Warn().Err(err).Str("type", msg.Type).Msg("websocket write failed, dropping client")
			c.conn.Close()
			h.Unregister(c.conn)
			for range c.send {
			}
			return
		}
	}
}

// Broadcast announces a change made on this server under a fresh id.
func (h *Hub) Broadcast(msgType string, doc domain.Document) {
	h.Publish(Message{
		ID:       uuid.NewString(),
		Type:     msgType,
		Origin:   h.origin,
		Document: &doc,
	})
}

// Publish forwards msg as is, keeping the id and origin of whoever produced
// it. It never blocks; when the queue is full the message is dropped.
func (h *Hub) Publish(msg Message) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		h.log.Warn().Str("id", msg.ID).Msg("broadcast queue full, message dropped")
	}
}

func (h *Hub) Register(conn Conn) {
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
	}
}

func (h *Hub) Unregister(conn Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleConnection registers conn and blocks reading from it until it fails.
// Clients only ever send "subscribe"; anything else is ignored.
func (h *Hub) HandleConnection(conn Conn) {
	h.Register(conn)
	defer h.Unregister(conn)

	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}

		if msgType, ok := msg["type"].(string); ok && msgType == "subscribe" {
			h.log.Debug().Msg("client subscribed")
		}
	}
}
