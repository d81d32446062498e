package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"taskly-chat/internal/cache"
	"taskly-chat/internal/models"
	"taskly-chat/internal/observability"
	"taskly-chat/internal/repositories"
)

const messageRoutingKey = "chat_events.messages"

// ChatWebSocketHandler serves /ws/chat: it stores every frame a client sends
// and broadcasts the stored message to all connected clients.
type ChatWebSocketHandler struct {
	hub    *Hub
	repo   repositories.MessageRepository
	cache  cache.HistoryCache
	logger zerolog.Logger

	// sendMu holds store and broadcast together so every client sees
	// messages in id order.
	sendMu sync.Mutex
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler. historyCache may be nil.
func NewChatWebSocketHandler(hub *Hub, repo repositories.MessageRepository, historyCache cache.HistoryCache, logger *zerolog.Logger) *ChatWebSocketHandler {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "ws.relay").Logger()
	}
	return &ChatWebSocketHandler{hub: hub, repo: repo, cache: historyCache, logger: l}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle validates the identity query, upgrades the connection and runs the
// read loop until the client goes away.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	userID, err := strconv.Atoi(c.Query("user_id"))
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	userName := strings.TrimSpace(c.Query("user_name"))
	if userName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user name required"})
		return
	}

	ctx, span := otel.Tracer("taskly-chat/ws").Start(c.Request.Context(), "ws.handshake")
	span.SetAttributes(attribute.Int("user.id", userID))
	traceID := span.SpanContext().TraceID().String()
	span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Int("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		UserName:    userName,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	client := h.hub.Add(conn, info)
	headers := observability.BuildHeaders(requestID, traceID)
	logger := h.logger.With().Str("conn_id", info.ConnID).Int("user_id", userID).Logger()

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   info.wsPayload("ws_connect", ""),
	}, headers)
	logger.Info().Str("user_name", userName).Msg("client connected")

	var closeReason string
	defer func() {
		h.hub.Remove(client)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload:   info.wsPayload("ws_disconnect", closeReason),
		}, headers)
		_ = conn.Close()
		logger.Info().Str("reason", closeReason).Msg("client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
					EventType: "ws_events",
					EventName: "ws_error",
					Payload:   info.wsPayload("ws_error", closeReason),
				}, headers)
			}
			return
		}
		h.handleFrame(ctx, info, data, headers, logger)
	}
}

func (h *ChatWebSocketHandler) handleFrame(ctx context.Context, info ConnInfo, data []byte, headers map[string]string, logger zerolog.Logger) {
	var frame models.OutboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Warn().Err(err).Msg("discarding malformed frame")
		observability.IncWSEvent("frame_rejected")
		return
	}
	body := strings.TrimSpace(frame.Message)
	if body == "" {
		observability.IncWSEvent("frame_rejected")
		return
	}

	msg, ok := h.storeAndBroadcast(ctx, info, body, logger)
	if !ok {
		return
	}
	observability.IncWSEvent("message")
	_ = observability.PublishEvent(ctx, messageRoutingKey, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: "message_created",
		Payload:   msg,
	}, headers)
}

func (h *ChatWebSocketHandler) storeAndBroadcast(ctx context.Context, info ConnInfo, body string, logger zerolog.Logger) (models.ChatMessage, bool) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	stored, err := h.repo.CreateMessage(ctx, info.UserID, info.UserName, body)
	if err != nil {
		logger.Error().Err(err).Msg("store message failed")
		observability.IncWSEvent("store_error")
		return models.ChatMessage{}, false
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(ctx); err != nil {
			logger.Warn().Err(err).Msg("history cache invalidate failed")
		}
	}

	msg := stored.ChatMessage()
	h.hub.Broadcast(msg)
	return msg, true
}
