package chat

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"taskly-chat/internal/models"
	"taskly-chat/internal/observability"
)

// Gate validates user input and hands accepted messages to the controller.
// Sent messages are not appended locally; they show up once the server
// broadcasts them back.
type Gate struct {
	ctrl   *Controller
	logger zerolog.Logger

	mu    sync.Mutex
	input string
}

// NewGate builds a Gate bound to ctrl.
func NewGate(ctrl *Controller, logger *zerolog.Logger) *Gate {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "chat.gate").Logger()
	}
	return &Gate{ctrl: ctrl, logger: l}
}

// SetInput replaces the input buffer.
func (g *Gate) SetInput(text string) {
	g.mu.Lock()
	g.input = text
	g.mu.Unlock()
}

// Input returns the input buffer.
func (g *Gate) Input() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.input
}

// Submit sends the current input buffer.
func (g *Gate) Submit() bool {
	return g.Send(g.Input())
}

// Send transmits text and clears the input buffer. Empty text and sends while
// not connected are rejected without an error.
func (g *Gate) Send(text string) bool {
	body := strings.TrimSpace(text)
	if body == "" {
		observability.IncFrameDropped("empty")
		return false
	}

	payload, err := json.Marshal(models.OutboundFrame{Message: body})
	if err != nil {
		g.logger.Error().Err(err).Msg("encode outbound frame")
		return false
	}

	if err := g.ctrl.transmit(payload); err != nil {
		if errors.Is(err, errNotConnected) {
			g.logger.Debug().Msg("send rejected, not connected")
			observability.IncFrameDropped("not_connected")
		}
		return false
	}

	g.SetInput("")
	return true
}
