package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyMessage is returned when a frame carries no message text.
var ErrEmptyMessage = errors.New("empty message body")

// ChatMessage represents one message of the global chat.
type ChatMessage struct {
	ID        *int   `json:"id,omitempty"`
	UserID    int    `json:"user_id"`
	UserName  string `json:"user_name"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at,omitempty"`
	Time      string `json:"time,omitempty"`
}

// DecodeChatMessage parses a single inbound frame.
func DecodeChatMessage(data []byte) (ChatMessage, error) {
	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ChatMessage{}, fmt.Errorf("decode chat message: %w", err)
	}
	if strings.TrimSpace(msg.Message) == "" {
		return ChatMessage{}, ErrEmptyMessage
	}
	return msg, nil
}

// Layouts accepted for server timestamps, besides RFC 3339. Fractional
// seconds are accepted by every layout.
var (
	zonedTimestampLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05Z07",
		"2006-01-02T15:04:05Z07",
	}
	// Zone-less timestamps are read as local time.
	localTimestampLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
)

// Timestamp returns the server-assigned creation time. The `time` field wins
// over `created_at` when both are present.
func (m ChatMessage) Timestamp() (time.Time, bool) {
	for _, raw := range []string{m.Time, m.CreatedAt} {
		if ts, ok := parseTimestamp(strings.TrimSpace(raw)); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

func parseTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedTimestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	for _, layout := range localTimestampLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// HasID reports whether the message has been persisted server-side.
func (m ChatMessage) HasID() bool {
	return m.ID != nil
}

// IsMine reports whether the identity authored the message.
func (m ChatMessage) IsMine(identity *Identity) bool {
	return identity != nil && m.UserID == identity.ID
}

// IntPtr is a helper for building messages with ids.
func IntPtr(v int) *int {
	return &v
}

// OutboundFrame is what a client sends over the realtime connection.
// The server attaches author, id and timestamp before broadcasting.
type OutboundFrame struct {
	Message string `json:"message"`
}

// HistoryResponse is the envelope returned by GET /chat/messages.
type HistoryResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Data    []ChatMessage `json:"data"`
	Error   string        `json:"error,omitempty"`
}
