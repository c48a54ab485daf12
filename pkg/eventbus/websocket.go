package eventbus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dibenedetto/meshade/internal/logger"
	"github.com/dibenedetto/meshade/pkg/models"
)

// WebSocketHub manages WebSocket connections and broadcasting, adapted from
// the teacher's go/internal/application/observer WebSocketHub/WebSocketClient
// (hub run-loop, register/unregister channels, ping/pong keepalive kept
// near-verbatim in mechanism); the payload is now a models.Event serialized
// directly rather than the teacher's bespoke EventPayload/WaveIndex shape,
// since this spec has no wave concept.
type WebSocketHub struct {
	clients    map[*WebSocketClient]bool
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	log        *logger.Logger
	mu         sync.RWMutex
}

// WebSocketClient represents one connected streaming client. It implements
// eventbus.StreamingClient so it can be registered directly with Bus.
type WebSocketClient struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	hub  *WebSocketHub
}

// NewWebSocketHub creates and starts a new hub.
func NewWebSocketHub(log *logger.Logger) *WebSocketHub {
	if log == nil {
		log = logger.Default()
	}
	hub := &WebSocketHub{
		clients:    make(map[*WebSocketClient]bool),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		log:        log,
	}
	go hub.run()
	return hub
}

func (h *WebSocketHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Info("websocket client connected", "client_id", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.Info("websocket client disconnected", "client_id", client.ID)
		}
	}
}

// NewClient creates a client bound to this hub and registers it.
func (h *WebSocketHub) NewClient(id string, conn *websocket.Conn) *WebSocketClient {
	client := &WebSocketClient{
		ID:   id,
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	h.register <- client
	return client
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send implements eventbus.StreamingClient: serializes event to JSON and
// enqueues it on the client's write buffer. A full buffer is treated as a
// failed send, per spec §4.2 "Failed writes remove the client" — the Bus
// then drops the client from its streaming set. The connection itself stays
// open until ReadPump ends, which unregisters the client from the hub and
// lets WritePump close it.
func (c *WebSocketClient) Send(event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("client %s send buffer full", c.ID)
	}
}

// ReadPump reads (and discards) inbound messages — spec §6 "Client →
// server: ignored in this core (the engine treats any inbound message as a
// keep-alive)" — until the connection closes, then unregisters the client.
func (c *WebSocketClient) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// WritePump drains the client's send buffer to the connection and pings on
// an interval to keep the connection alive, grounded on the teacher's
// WebSocketClient.WritePump.
func (c *WebSocketClient) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

