package models

import "time"

// StoredMessage is a persisted global chat message.
type StoredMessage struct {
	ID        int       `db:"id" json:"id"`
	UserID    int       `db:"user_id" json:"user_id"`
	UserName  string    `db:"user_name" json:"user_name"`
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ChatMessage converts the row into its wire representation.
func (m StoredMessage) ChatMessage() ChatMessage {
	return ChatMessage{
		ID:        IntPtr(m.ID),
		UserID:    m.UserID,
		UserName:  m.UserName,
		Message:   m.Message,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
