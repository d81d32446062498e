package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"taskly-chat/internal/cache"
	"taskly-chat/internal/logging"
	"taskly-chat/internal/models"
	"taskly-chat/internal/repositories"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 100
)

// HistoryHandler serves the recent global chat history.
type HistoryHandler struct {
	repo  repositories.MessageRepository
	cache cache.HistoryCache
}

// NewHistoryHandler builds a HistoryHandler. historyCache may be nil.
func NewHistoryHandler(repo repositories.MessageRepository, historyCache cache.HistoryCache) *HistoryHandler {
	return &HistoryHandler{repo: repo, cache: historyCache}
}

// GetMessages returns the newest messages in chronological order.
func (h *HistoryHandler) GetMessages(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.HistoryResponse{Success: false, Error: "invalid limit"})
		return
	}

	ctx := c.Request.Context()
	logger := logging.Ctx(ctx)

	// The generation is read before the query so a page loaded across a
	// concurrent insert is never written back to the cache.
	var (
		generation int64
		cacheable  bool
	)
	if h.cache != nil {
		msgs, err := h.cache.Get(ctx, limit)
		if err == nil {
			c.JSON(http.StatusOK, models.HistoryResponse{Success: true, Data: msgs})
			return
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("history cache read failed")
		}
		generation, err = h.cache.Generation(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("history cache generation read failed")
		} else {
			cacheable = true
		}
	}

	stored, err := h.repo.ListRecent(ctx, limit)
	if err != nil {
		logger.Error().Err(err).Int("limit", limit).Msg("failed to load history")
		c.JSON(http.StatusInternalServerError, models.HistoryResponse{Success: false, Error: "failed to load messages"})
		return
	}

	msgs := make([]models.ChatMessage, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, m.ChatMessage())
	}

	if cacheable {
		err := h.cache.Set(ctx, limit, generation, msgs)
		switch {
		case errors.Is(err, cache.ErrStaleGeneration):
			logger.Debug().Int("limit", limit).Msg("history changed while loading, skipping cache write")
		case err != nil:
			logger.Warn().Err(err).Msg("history cache write failed")
		}
	}

	c.JSON(http.StatusOK, models.HistoryResponse{Success: true, Data: msgs})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("invalid limit")
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit, nil
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
