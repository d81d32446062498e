package chat

import (
	"fmt"
	"net/url"
	"strings"

	"taskly-chat/internal/models"
)

// RealtimeURL builds the websocket endpoint for an identity.
func RealtimeURL(baseWS string, identity models.Identity) string {
	return fmt.Sprintf("%s/ws/chat?user_id=%d&user_name=%s",
		strings.TrimRight(baseWS, "/"), identity.ID, encodeComponent(identity.Name))
}

// HistoryURL builds the history endpoint from the websocket base.
func HistoryURL(baseWS string, limit int) string {
	return fmt.Sprintf("%s/chat/messages?limit=%d", HTTPBaseFromWS(baseWS), limit)
}

// HTTPBaseFromWS rewrites a ws/wss base into its http/https counterpart.
func HTTPBaseFromWS(baseWS string) string {
	base := strings.TrimRight(baseWS, "/")
	switch {
	case strings.HasPrefix(base, "ws://"):
		return "http://" + strings.TrimPrefix(base, "ws://")
	case strings.HasPrefix(base, "wss://"):
		return "https://" + strings.TrimPrefix(base, "wss://")
	default:
		return base
	}
}

// encodeComponent escapes like a browser's encodeURIComponent: spaces become %20.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
