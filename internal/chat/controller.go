package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"taskly-chat/internal/models"
	"taskly-chat/internal/observability"
)

// DefaultReconnectDelay is the fixed delay between a drop and the next attempt.
const DefaultReconnectDelay = 3 * time.Second

var (
	// ErrNoIdentity is returned when starting without an authenticated user.
	ErrNoIdentity = errors.New("chat: no identity")
	// ErrStopped is returned when starting a controller that was stopped.
	ErrStopped = errors.New("chat: session stopped")

	errNotConnected = errors.New("chat: not connected")
)

// Listener observes the session in event order. Callbacks run while the
// controller lock is held and must not call back into the controller.
type Listener interface {
	MessageAppended(msg models.ChatMessage)
	HistoryLoaded(batch []models.ChatMessage)
	PresenceChanged(connected bool)
}

type eventKind int

const (
	evStart eventKind = iota
	evOpen
	evMessage
	evClose
	evError
	evTimer
	evStop
)

func (k eventKind) String() string {
	switch k {
	case evStart:
		return "start"
	case evOpen:
		return "open"
	case evMessage:
		return "message"
	case evClose:
		return "close"
	case evError:
		return "error"
	case evTimer:
		return "timer"
	case evStop:
		return "stop"
	default:
		return "unknown"
	}
}

type event struct {
	kind     eventKind
	gen      uint64
	identity *models.Identity
	data     []byte
	err      error
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	BaseURL        string
	ReconnectDelay time.Duration
	Dialer         Dialer
	Clock          Clock
	Logger         *zerolog.Logger
	Listener       Listener
}

// Controller owns at most one realtime connection and recovers from drops
// with a fixed-delay reconnect. Every transition goes through dispatch, which
// serializes transport callbacks, timer callbacks and API calls.
type Controller struct {
	mu       sync.Mutex
	baseURL  string
	delay    time.Duration
	dialer   Dialer
	clock    Clock
	logger   zerolog.Logger
	listener Listener
	ctx      context.Context
	cancel   context.CancelFunc

	identity *models.Identity
	state    State
	stopped  bool

	conn    Conn
	connGen uint64

	reconnect Timer
	timerGen  uint64

	log messageLog
}

// NewController builds a Controller in the Disconnected state.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "chat.controller").Logger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		baseURL:  cfg.BaseURL,
		delay:    cfg.ReconnectDelay,
		dialer:   cfg.Dialer,
		clock:    cfg.Clock,
		logger:   logger,
		listener: cfg.Listener,
		ctx:      ctx,
		cancel:   cancel,
		state:    StateDisconnected,
	}
}

// Start connects on behalf of identity. It is a no-op when already
// connecting or connected for the same identity.
func (c *Controller) Start(identity *models.Identity) error {
	return c.dispatch(event{kind: evStart, identity: identity})
}

// Stop cancels the pending reconnect and closes the active transport.
// Transport events delivered afterwards are ignored.
func (c *Controller) Stop() {
	_ = c.dispatch(event{kind: evStop})
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stopped reports whether Stop was called.
func (c *Controller) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Messages returns a copy of the ordered log.
func (c *Controller) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log.snapshot()
}

// ReconnectPending reports whether a reconnect timer is scheduled.
func (c *Controller) ReconnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnect != nil
}

func (c *Controller) dispatch(ev event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle(ev)
}

// handle is the single transition function. Callers hold c.mu.
func (c *Controller) handle(ev event) error {
	if c.stopped {
		if ev.kind == evStart {
			return ErrStopped
		}
		c.logger.Debug().Stringer("event", ev.kind).Msg("event after stop ignored")
		return nil
	}

	switch ev.kind {
	case evStart:
		return c.handleStart(ev.identity)
	case evOpen:
		if ev.gen != c.connGen || c.conn == nil {
			return nil
		}
		c.logger.Info().Msg("websocket connected")
		observability.IncSessionEvent("open")
		c.setState(StateConnected)
	case evMessage:
		if ev.gen != c.connGen || c.conn == nil {
			return nil
		}
		c.handleFrame(ev.data)
	case evClose:
		if ev.gen != c.connGen {
			return nil
		}
		c.conn = nil
		c.setState(StateDisconnected)
		observability.IncSessionEvent("close")
		c.scheduleReconnect()
	case evError:
		if ev.gen != c.connGen || c.conn == nil {
			return nil
		}
		c.logger.Error().Err(ev.err).Msg("websocket error")
		observability.IncSessionEvent("error")
		// The close that follows schedules the reconnect.
		_ = c.conn.Close()
	case evTimer:
		if ev.gen != c.timerGen || c.reconnect == nil {
			return nil
		}
		c.reconnect = nil
		if c.state != StateDisconnected {
			return nil
		}
		observability.IncSessionEvent("reconnect")
		c.connect()
	case evStop:
		c.stopped = true
		c.cancelReconnect()
		if c.conn != nil {
			_ = c.conn.Close()
			c.conn = nil
		}
		c.connGen++
		c.setState(StateDisconnected)
		c.cancel()
		c.logger.Info().Msg("session stopped")
	}
	return nil
}

func (c *Controller) handleStart(identity *models.Identity) error {
	if identity == nil {
		return ErrNoIdentity
	}
	if c.identity.Same(identity) && c.state != StateDisconnected {
		return nil
	}
	id := *identity
	c.identity = &id
	c.cancelReconnect()
	c.connect()
	return nil
}

// connect replaces any existing transport with a new one.
func (c *Controller) connect() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connGen++
	c.setState(StateConnecting)

	target := RealtimeURL(c.baseURL, *c.identity)
	c.logger.Info().Str("url", target).Uint64("attempt", c.connGen).Msg("connecting")
	observability.IncSessionEvent("connect_attempt")
	c.conn = c.dialer.Open(c.ctx, target, connHandler{c: c, gen: c.connGen})
}

func (c *Controller) handleFrame(data []byte) {
	msg, err := models.DecodeChatMessage(data)
	if err != nil {
		c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("discarding malformed frame")
		observability.IncFrameDropped("malformed")
		return
	}
	observability.IncFrame("in")
	c.log.append(msg)
	if c.listener != nil {
		c.listener.MessageAppended(msg)
	}
}

func (c *Controller) scheduleReconnect() {
	c.cancelReconnect()
	gen := c.timerGen
	c.reconnect = c.clock.AfterFunc(c.delay, func() {
		_ = c.dispatch(event{kind: evTimer, gen: gen})
	})
	c.logger.Info().Dur("delay", c.delay).Msg("websocket disconnected, reconnect scheduled")
	observability.IncSessionEvent("reconnect_scheduled")
}

// cancelReconnect stops the pending timer and invalidates a callback that
// may already be waiting on the lock.
func (c *Controller) cancelReconnect() {
	c.timerGen++
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

func (c *Controller) setState(next State) {
	prev := c.state
	c.state = next
	wasConnected, isConnected := Project(prev), Project(next)
	if wasConnected == isConnected {
		return
	}
	observability.SetSessionConnected(isConnected)
	if c.listener != nil {
		c.listener.PresenceChanged(isConnected)
	}
}

// transmit writes one outbound frame on the active transport.
func (c *Controller) transmit(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.state != StateConnected || c.conn == nil {
		return errNotConnected
	}
	if err := c.conn.Send(payload); err != nil {
		c.logger.Error().Err(err).Msg("websocket write failed")
		observability.IncFrameDropped("write_error")
		_ = c.conn.Close()
		return err
	}
	observability.IncFrame("out")
	return nil
}

// applyHistory inserts the hydrated batch ahead of live messages, once.
func (c *Controller) applyHistory(batch []models.ChatMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.log.hydrated {
		return false
	}
	added := c.log.prependHistory(batch)
	c.logger.Debug().Int("messages", added).Msg("history hydrated")
	if c.listener != nil {
		c.listener.HistoryLoaded(c.log.snapshot()[:added])
	}
	return true
}

type connHandler struct {
	c   *Controller
	gen uint64
}

func (h connHandler) OnOpen() {
	_ = h.c.dispatch(event{kind: evOpen, gen: h.gen})
}

func (h connHandler) OnMessage(data []byte) {
	_ = h.c.dispatch(event{kind: evMessage, gen: h.gen, data: data})
}

func (h connHandler) OnClose() {
	_ = h.c.dispatch(event{kind: evClose, gen: h.gen})
}

func (h connHandler) OnError(err error) {
	_ = h.c.dispatch(event{kind: evError, gen: h.gen, err: err})
}
