package cache

import (
	"context"
	"errors"

	"taskly-chat/internal/models"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrStaleGeneration is returned by Set when the cache was invalidated
	// after the caller read its generation.
	ErrStaleGeneration = errors.New("cache generation changed")
)

// HistoryCache caches the latest history page per limit. Any new message
// invalidates every cached page and bumps the generation, so a page loaded
// before the invalidation is never written back.
type HistoryCache interface {
	Get(ctx context.Context, limit int) ([]models.ChatMessage, error)
	Generation(ctx context.Context) (int64, error)
	Set(ctx context.Context, limit int, generation int64, msgs []models.ChatMessage) error
	Invalidate(ctx context.Context) error
	Close() error
}
