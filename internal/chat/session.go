package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"taskly-chat/internal/models"
)

// Options configures a Session.
type Options struct {
	BaseURL        string
	HistoryLimit   int
	ReconnectDelay time.Duration
	Dialer         Dialer
	History        HistoryFetcher
	Clock          Clock
	Logger         *zerolog.Logger
	Listener       Listener
}

// Session is one mounted chat view: it hydrates history, keeps the realtime
// connection alive and gates outbound messages.
type Session struct {
	identity *models.Identity
	ctrl     *Controller
	hydrator *Hydrator
	gate     *Gate
	presence Presence
	logger   zerolog.Logger

	mountOnce   sync.Once
	unmountOnce sync.Once
	cancel      context.CancelFunc
	hydrated    chan struct{}
}

// NewSession builds a Session for identity. Nothing happens until Mount.
func NewSession(identity *models.Identity, opts Options) *Session {
	ctrl := NewController(ControllerConfig{
		BaseURL:        opts.BaseURL,
		ReconnectDelay: opts.ReconnectDelay,
		Dialer:         opts.Dialer,
		Clock:          opts.Clock,
		Logger:         opts.Logger,
		Listener:       opts.Listener,
	})
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	s := &Session{
		identity: identity,
		ctrl:     ctrl,
		gate:     NewGate(ctrl, opts.Logger),
		presence: NewPresence(ctrl),
		logger:   logger,
		hydrated: make(chan struct{}),
	}
	if opts.History != nil {
		s.hydrator = NewHydrator(opts.History, opts.HistoryLimit, ctrl, opts.Logger)
	} else {
		close(s.hydrated)
	}
	return s
}

// Mount starts history hydration in the background and opens the realtime
// connection. The hydration does not block the connection.
func (s *Session) Mount(ctx context.Context) error {
	if s.identity == nil {
		return ErrNoIdentity
	}

	var err error
	s.mountOnce.Do(func() {
		hydrateCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel

		if s.hydrator != nil {
			go func() {
				defer close(s.hydrated)
				_ = s.hydrator.Hydrate(hydrateCtx)
			}()
		}
		s.logger.Info().Int("user_id", s.identity.ID).Msg("chat session mounted")
		err = s.ctrl.Start(s.identity)
	})
	return err
}

// Unmount stops the session. Safe to call more than once and on every exit path.
func (s *Session) Unmount() {
	s.unmountOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.ctrl.Stop()
	})
}

// Hydrated is closed once the history load finished, successfully or not.
func (s *Session) Hydrated() <-chan struct{} {
	return s.hydrated
}

// Identity returns the identity the session is bound to.
func (s *Session) Identity() *models.Identity {
	return s.identity
}

// Messages returns the ordered log.
func (s *Session) Messages() []models.ChatMessage {
	return s.ctrl.Messages()
}

// Connected reports whether messages can be sent.
func (s *Session) Connected() bool {
	return s.presence.Connected()
}

// Status returns "connected" or "reconnecting".
func (s *Session) Status() string {
	return s.presence.Status()
}

// State returns the controller state.
func (s *Session) State() State {
	return s.ctrl.State()
}

// SetInput replaces the composer buffer.
func (s *Session) SetInput(text string) {
	s.gate.SetInput(text)
}

// Input returns the composer buffer.
func (s *Session) Input() string {
	return s.gate.Input()
}

// Send transmits text if connected and non-empty.
func (s *Session) Send(text string) bool {
	return s.gate.Send(text)
}

// Submit sends the composer buffer.
func (s *Session) Submit() bool {
	return s.gate.Submit()
}
