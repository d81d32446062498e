package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskly-chat/internal/chat"
	"taskly-chat/internal/models"
)

// ErrUnsuccessful is returned when the server answers with success=false.
var ErrUnsuccessful = errors.New("api: request unsuccessful")

const defaultTimeout = 10 * time.Second

// Client talks to the Taskly REST API and to the chat history endpoint.
type Client struct {
	apiBase    string
	wsBase     string
	httpClient *http.Client
	tracer     trace.Tracer

	mu    sync.RWMutex
	token string
}

// NewClient creates a client. apiBase serves /user/login; the history
// endpoint is derived from the realtime base wsBase.
func NewClient(apiBase, wsBase string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiBase:    strings.TrimRight(apiBase, "/"),
		wsBase:     wsBase,
		httpClient: &http.Client{Timeout: timeout},
		tracer:     otel.Tracer("taskly-chat/api"),
	}
}

// SetToken sets the bearer token sent on subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// FetchHistory loads up to limit messages in chronological order.
func (c *Client) FetchHistory(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	ctx, span := c.tracer.Start(ctx, "api.fetch_history")
	defer span.End()
	span.SetAttributes(attribute.Int("history.limit", limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chat.HistoryURL(c.wsBase, limit), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var envelope models.HistoryResponse
	if err := c.do(req, &envelope); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	if !envelope.Success {
		err := unsuccessful(envelope.Message, envelope.Error)
		recordError(span, err)
		return nil, err
	}
	if envelope.Data == nil {
		return []models.ChatMessage{}, nil
	}
	span.SetAttributes(attribute.Int("history.count", len(envelope.Data)))
	return envelope.Data, nil
}

// Login authenticates with POST /user/login and stores the returned token.
func (c *Client) Login(ctx context.Context, identifier, password string) (models.LoginData, error) {
	ctx, span := c.tracer.Start(ctx, "api.login")
	defer span.End()

	body, err := json.Marshal(models.LoginRequest{Identifier: identifier, Password: password})
	if err != nil {
		return models.LoginData{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/user/login", bytes.NewReader(body))
	if err != nil {
		return models.LoginData{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var envelope models.LoginResponse
	if err := c.do(req, &envelope); err != nil {
		recordError(span, err)
		return models.LoginData{}, fmt.Errorf("login: %w", err)
	}
	if !envelope.Success || envelope.Data == nil {
		err := unsuccessful(envelope.Message, "")
		recordError(span, err)
		return models.LoginData{}, err
	}

	c.SetToken(envelope.Data.Token)
	span.SetAttributes(attribute.Int("user.id", envelope.Data.User.ID))
	return *envelope.Data, nil
}

// do executes req and decodes the JSON body into out. A non-2xx status is an
// error even when the body decodes.
func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.Unmarshal(raw, &envelope)
		if msg := firstNonEmpty(envelope.Message, envelope.Error); msg != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func unsuccessful(messages ...string) error {
	if msg := firstNonEmpty(messages...); msg != "" {
		return fmt.Errorf("%w: %s", ErrUnsuccessful, msg)
	}
	return ErrUnsuccessful
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

var _ chat.HistoryFetcher = (*Client)(nil)
