package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"taskly-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for global chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, userID int, userName string, message string) (models.StoredMessage, error)
	ListRecent(ctx context.Context, limit int) ([]models.StoredMessage, error)
	GetMessage(ctx context.Context, messageID int) (models.StoredMessage, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message; id and created_at are assigned by the database.
func (r *MessageRepo) CreateMessage(ctx context.Context, userID int, userName string, message string) (models.StoredMessage, error) {
	var msg models.StoredMessage
	err := r.db.QueryRowxContext(ctx, `INSERT INTO chat_messages (user_id, user_name, message) VALUES ($1, $2, $3) RETURNING id, user_id, user_name, message, created_at`, userID, userName, message).
		StructScan(&msg)
	return msg, err
}

// ListRecent returns the newest messages in chronological order.
func (r *MessageRepo) ListRecent(ctx context.Context, limit int) ([]models.StoredMessage, error) {
	query := `SELECT id, user_id, user_name, message, created_at FROM (
            SELECT id, user_id, user_name, message, created_at
            FROM chat_messages
            ORDER BY id DESC
            LIMIT $1
        ) recent
        ORDER BY id ASC`
	msgs := []models.StoredMessage{}
	err := r.db.SelectContext(ctx, &msgs, query, limit)
	return msgs, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.StoredMessage, error) {
	var msg models.StoredMessage
	err := r.db.GetContext(ctx, &msg, `SELECT id, user_id, user_name, message, created_at FROM chat_messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StoredMessage{}, ErrMessageNotFound
	}
	return msg, err
}
