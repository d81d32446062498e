package ws

import (
	"time"

	"github.com/google/uuid"
)

// ConnInfo describes one relay connection for logs and events.
type ConnInfo struct {
	ConnID      string
	UserID      int
	UserName    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnID() string {
	return uuid.NewString()
}

func (i ConnInfo) identity() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   i.UserID,
		"user_name": i.UserName,
		"ip":        i.IP,
	}
}

func (i ConnInfo) wsPayload(event, reason string) map[string]interface{} {
	duration := int64(0)
	if !i.ConnectedAt.IsZero() {
		duration = time.Since(i.ConnectedAt).Milliseconds()
	}
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     i.ConnID,
			"duration_ms": duration,
			"reason":      reason,
		},
		"identity": i.identity(),
	}
}
