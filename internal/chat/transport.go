package chat

import "context"

// Handler receives the events of one transport connection. Events of a
// single connection are delivered one at a time, in order.
type Handler interface {
	OnOpen()
	OnMessage(data []byte)
	OnClose()
	OnError(err error)
}

// Conn is one live realtime connection.
type Conn interface {
	Send(data []byte) error
	// Close is idempotent and must not call the handler synchronously;
	// the handler observes OnClose afterwards.
	Close() error
}

// Dialer opens realtime connections. Open returns immediately; the outcome
// of the handshake is reported through h (OnOpen, or OnError/OnClose).
type Dialer interface {
	Open(ctx context.Context, rawURL string, h Handler) Conn
}
