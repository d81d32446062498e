package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"taskly-chat/internal/cache"
	"taskly-chat/internal/models"
	"taskly-chat/internal/repositories"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, userID int, userName string, message string) (models.StoredMessage, error) {
	args := m.Called(ctx, userID, userName, message)
	var msg models.StoredMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.StoredMessage)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListRecent(ctx context.Context, limit int) ([]models.StoredMessage, error) {
	args := m.Called(ctx, limit)
	var msgs []models.StoredMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.StoredMessage)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.StoredMessage, error) {
	args := m.Called(ctx, messageID)
	var msg models.StoredMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.StoredMessage)
	}
	return msg, args.Error(1)
}

type HistoryCacheMock struct {
	mock.Mock
}

func (m *HistoryCacheMock) Get(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, limit)
	var msgs []models.ChatMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.ChatMessage)
	}
	return msgs, args.Error(1)
}

func (m *HistoryCacheMock) Generation(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *HistoryCacheMock) Set(ctx context.Context, limit int, generation int64, msgs []models.ChatMessage) error {
	args := m.Called(ctx, limit, generation, msgs)
	return args.Error(0)
}

func (m *HistoryCacheMock) Invalidate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *HistoryCacheMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// HistoryFetcherMock loads the history page for a chat session.
type HistoryFetcherMock struct {
	mock.Mock
}

func (m *HistoryFetcherMock) FetchHistory(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, limit)
	var msgs []models.ChatMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.ChatMessage)
	}
	return msgs, args.Error(1)
}

type LoginClientMock struct {
	mock.Mock
}

func (m *LoginClientMock) Login(ctx context.Context, identifier, password string) (models.LoginData, error) {
	args := m.Called(ctx, identifier, password)
	var data models.LoginData
	if val := args.Get(0); val != nil {
		data = val.(models.LoginData)
	}
	return data, args.Error(1)
}

func (m *LoginClientMock) SetToken(token string) {
	m.Called(token)
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ cache.HistoryCache = (*HistoryCacheMock)(nil)
var _ interface {
	FetchHistory(context.Context, int) ([]models.ChatMessage, error)
} = (*HistoryFetcherMock)(nil)
var _ interface {
	Login(context.Context, string, string) (models.LoginData, error)
} = (*LoginClientMock)(nil)
