package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"taskly-chat/internal/cache"
	"taskly-chat/internal/mocks"
	"taskly-chat/internal/models"
)

func setupHistoryRouter(handler *HistoryHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/chat/messages", handler.GetMessages)
	r.GET("/health", Health)
	return r
}

func doGet(t *testing.T, router *gin.Engine, target string) (*httptest.ResponseRecorder, models.HistoryResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp models.HistoryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec, resp
}

func storedRows() []models.StoredMessage {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []models.StoredMessage{
		{ID: 1, UserID: 1, UserName: "Ann", Message: "first", CreatedAt: at},
		{ID: 2, UserID: 2, UserName: "Bo", Message: "second", CreatedAt: at.Add(time.Minute)},
	}
}

func TestGetMessagesDefaultLimit(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	router := setupHistoryRouter(NewHistoryHandler(repo, nil))

	repo.On("ListRecent", mock.Anything, 100).Return(storedRows(), nil).Once()

	rec, resp := doGet(t, router, "/chat/messages")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "first", resp.Data[0].Message)
	assert.Equal(t, "2024-01-01T00:01:00Z", resp.Data[1].CreatedAt)
	repo.AssertExpectations(t)
}

func TestGetMessagesClampsLimit(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	router := setupHistoryRouter(NewHistoryHandler(repo, nil))

	repo.On("ListRecent", mock.Anything, 100).Return([]models.StoredMessage{}, nil).Once()

	rec, resp := doGet(t, router, "/chat/messages?limit=500")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Data)
	repo.AssertExpectations(t)
}

func TestGetMessagesInvalidLimit(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	router := setupHistoryRouter(NewHistoryHandler(repo, nil))

	for _, limit := range []string{"abc", "0", "-5"} {
		rec, resp := doGet(t, router, "/chat/messages?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, rec.Code, limit)
		assert.False(t, resp.Success, limit)
	}
	repo.AssertNotCalled(t, "ListRecent", mock.Anything, mock.Anything)
}

func TestGetMessagesRepoError(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	router := setupHistoryRouter(NewHistoryHandler(repo, nil))

	repo.On("ListRecent", mock.Anything, 20).Return(nil, errors.New("db down")).Once()

	rec, resp := doGet(t, router, "/chat/messages?limit=20")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, resp.Success)
	repo.AssertExpectations(t)
}

func TestGetMessagesServedFromCache(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	historyCache := new(mocks.HistoryCacheMock)
	router := setupHistoryRouter(NewHistoryHandler(repo, historyCache))

	cached := []models.ChatMessage{{ID: models.IntPtr(9), UserID: 1, UserName: "Ann", Message: "cached"}}
	historyCache.On("Get", mock.Anything, 50).Return(cached, nil).Once()

	rec, resp := doGet(t, router, "/chat/messages?limit=50")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "cached", resp.Data[0].Message)
	repo.AssertNotCalled(t, "ListRecent", mock.Anything, mock.Anything)
	historyCache.AssertExpectations(t)
}

func TestGetMessagesFillsCacheOnMiss(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	historyCache := new(mocks.HistoryCacheMock)
	router := setupHistoryRouter(NewHistoryHandler(repo, historyCache))

	historyCache.On("Get", mock.Anything, 100).Return(nil, cache.ErrCacheMiss).Once()
	historyCache.On("Generation", mock.Anything).Return(int64(4), nil).Once()
	repo.On("ListRecent", mock.Anything, 100).Return(storedRows(), nil).Once()
	historyCache.On("Set", mock.Anything, 100, int64(4), mock.MatchedBy(func(msgs []models.ChatMessage) bool {
		return len(msgs) == 2 && msgs[0].Message == "first"
	})).Return(nil).Once()

	rec, resp := doGet(t, router, "/chat/messages")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 2)
	repo.AssertExpectations(t)
	historyCache.AssertExpectations(t)
}

func TestGetMessagesSkipsCacheWhenGenerationUnavailable(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	historyCache := new(mocks.HistoryCacheMock)
	router := setupHistoryRouter(NewHistoryHandler(repo, historyCache))

	historyCache.On("Get", mock.Anything, 100).Return(nil, cache.ErrCacheMiss).Once()
	historyCache.On("Generation", mock.Anything).Return(int64(0), errors.New("redis down")).Once()
	repo.On("ListRecent", mock.Anything, 100).Return(storedRows(), nil).Once()

	rec, resp := doGet(t, router, "/chat/messages")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 2)
	historyCache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// A message inserted while the page is being read must not be masked by the
// stale page landing in the cache afterwards.
func TestGetMessagesDoesNotCachePageReadAcrossInsert(t *testing.T) {
	mr := miniredis.RunT(t)
	historyCache, err := cache.NewRedisHistoryCache(mr.Addr(), "", 0, "chat", 30*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { historyCache.Close() })

	repo := new(mocks.MessageRepositoryMock)
	router := setupHistoryRouter(NewHistoryHandler(repo, historyCache))

	rows := storedRows()
	repo.On("ListRecent", mock.Anything, 100).
		Run(func(args mock.Arguments) {
			// Relay stores a new message and invalidates mid-query.
			require.NoError(t, historyCache.Invalidate(context.Background()))
		}).
		Return(rows[:1], nil).Once()
	repo.On("ListRecent", mock.Anything, 100).Return(rows, nil).Once()

	_, first := doGet(t, router, "/chat/messages")
	require.Len(t, first.Data, 1)

	_, second := doGet(t, router, "/chat/messages")
	require.Len(t, second.Data, 2)
	assert.Equal(t, "second", second.Data[1].Message)

	_, third := doGet(t, router, "/chat/messages")
	assert.Len(t, third.Data, 2)
	repo.AssertExpectations(t)
}

func TestHealth(t *testing.T) {
	router := setupHistoryRouter(NewHistoryHandler(new(mocks.MessageRepositoryMock), nil))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
