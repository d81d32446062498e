package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"taskly-chat/internal/models"
	"taskly-chat/internal/observability"
)

const wsRoutingKey = "ws_events.chat"

// Client is one relay websocket connection. Writes are serialized per client.
type Client struct {
	conn    *websocket.Conn
	info    ConnInfo
	writeMu sync.Mutex
}

// Info returns the connection metadata.
func (c *Client) Info() ConnInfo {
	return c.info
}

func (c *Client) write(payload []byte, wait time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(wait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub maintains the clients of the single global chat room.
type Hub struct {
	clients   map[*Client]struct{}
	writeWait time.Duration
	logger    zerolog.Logger
	mu        sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub(logger *zerolog.Logger) *Hub {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "ws.hub").Logger()
	}
	return &Hub{
		clients:   make(map[*Client]struct{}),
		writeWait: DefaultWriteWait,
		logger:    l,
	}
}

// Add registers a websocket connection.
func (h *Hub) Add(conn *websocket.Conn, info ConnInfo) *Client {
	client := &Client{conn: conn, info: info}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	return client
}

// Remove unregisters a client. Removing twice is a no-op.
func (h *Hub) Remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return false
	}
	delete(h.clients, client)
	return true
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends msg to every client, the sender included.
func (h *Hub) Broadcast(msg models.ChatMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode broadcast failed")
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.write(payload, h.writeWait); err != nil {
			h.logger.Warn().Err(err).Str("conn_id", client.info.ConnID).Msg("websocket write error")
			_ = client.conn.Close()
			if h.Remove(client) {
				h.publishWSError(client.info, err)
			}
		}
	}
}

func (h *Hub) publishWSError(info ConnInfo, err error) {
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   info.wsPayload("ws_error", err.Error()),
	}, headers)
	observability.IncWSEvent("ws_error")
}
