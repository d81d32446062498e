package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"taskly-chat/internal/chat"
)

// DefaultWriteWait bounds a single outbound write.
const DefaultWriteWait = 10 * time.Second

var errConnClosed = errors.New("ws: connection closed")

// Dialer opens client websocket connections for a chat session.
type Dialer struct {
	dialer    *websocket.Dialer
	writeWait time.Duration
	header    http.Header
	logger    zerolog.Logger
}

// NewDialer builds a Dialer. A zero writeWait uses DefaultWriteWait.
func NewDialer(writeWait time.Duration, logger *zerolog.Logger) *Dialer {
	if writeWait <= 0 {
		writeWait = DefaultWriteWait
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "ws.dialer").Logger()
	}
	return &Dialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
		},
		writeWait: writeWait,
		logger:    l,
	}
}

// WithHeader returns a copy of d that sends header on every handshake.
func (d *Dialer) WithHeader(header http.Header) *Dialer {
	cp := *d
	cp.header = header.Clone()
	return &cp
}

// Open starts the handshake in the background and returns at once. Every
// handler call for the returned connection comes from one goroutine.
func (d *Dialer) Open(ctx context.Context, rawURL string, h chat.Handler) chat.Conn {
	ctx, cancel := context.WithCancel(ctx)
	c := &clientConn{writeWait: d.writeWait, cancel: cancel, logger: d.logger}
	go c.run(ctx, d, rawURL, h)
	return c
}

type clientConn struct {
	writeWait time.Duration
	cancel    context.CancelFunc
	logger    zerolog.Logger

	mu     sync.Mutex
	ws     *websocket.Conn
	closed bool
}

func (c *clientConn) run(ctx context.Context, d *Dialer, rawURL string, h chat.Handler) {
	defer c.cancel()

	dialCtx, span := otel.Tracer("taskly-chat/ws").Start(ctx, "ws.dial")
	span.SetAttributes(attribute.String("ws.url", rawURL))
	conn, resp, err := d.dialer.DialContext(dialCtx, rawURL, d.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		span.End()
		if !c.isClosed() {
			h.OnError(err)
		}
		h.OnClose()
		return
	}
	span.End()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		h.OnClose()
		return
	}
	c.ws = conn
	c.mu.Unlock()

	h.OnOpen()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.isClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("websocket read failed")
				h.OnError(err)
			}
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
			_ = conn.Close()
			h.OnClose()
			return
		}
		h.OnMessage(data)
	}
}

func (c *clientConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *clientConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ws == nil {
		return errConnClosed
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and tears the socket down. The read goroutine
// reports OnClose once it observes the shutdown.
func (c *clientConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.ws
	c.mu.Unlock()

	c.cancel()
	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
	return conn.Close()
}

var _ chat.Dialer = (*Dialer)(nil)
