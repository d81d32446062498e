package chat

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"taskly-chat/internal/models"
)

// DefaultHistoryLimit is how many persisted messages are hydrated at mount.
const DefaultHistoryLimit = 100

// HistoryFetcher loads persisted messages in chronological order.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, limit int) ([]models.ChatMessage, error)
}

// Hydrator performs the one-time history load of a session.
type Hydrator struct {
	fetcher HistoryFetcher
	limit   int
	ctrl    *Controller
	logger  zerolog.Logger
	issued  atomic.Bool
}

// NewHydrator builds a Hydrator that feeds ctrl's log.
func NewHydrator(fetcher HistoryFetcher, limit int, ctrl *Controller, logger *zerolog.Logger) *Hydrator {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "chat.hydrator").Logger()
	}
	return &Hydrator{fetcher: fetcher, limit: limit, ctrl: ctrl, logger: l}
}

// Hydrate fetches history once. Failures leave the log untouched and are not
// retried; a response arriving after the session stopped is dropped.
func (h *Hydrator) Hydrate(ctx context.Context) error {
	if !h.issued.CompareAndSwap(false, true) {
		return nil
	}

	msgs, err := h.fetcher.FetchHistory(ctx, h.limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to fetch chat history")
		return err
	}

	if !h.ctrl.applyHistory(msgs) {
		h.logger.Debug().Int("messages", len(msgs)).Msg("history ignored, session no longer live")
	}
	return nil
}
