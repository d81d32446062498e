package chat

import (
	"context"
	"sync"
	"time"

	"taskly-chat/internal/models"
)

type fakeConn struct {
	url     string
	handler Handler

	mu      sync.Mutex
	sent    []string
	closes  int
	sendErr error
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, string(data))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeConn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeConn) open()              { c.handler.OnOpen() }
func (c *fakeConn) deliver(raw string) { c.handler.OnMessage([]byte(raw)) }
func (c *fakeConn) drop()              { c.handler.OnClose() }
func (c *fakeConn) fail(err error)     { c.handler.OnError(err) }

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDialer) Open(_ context.Context, rawURL string, h Handler) Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	conn := &fakeConn{url: rawURL, handler: h}
	d.conns = append(d.conns, conn)
	return conn
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) Last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// Live counts connections that were never closed by the controller.
func (d *fakeDialer) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	live := 0
	for _, c := range d.conns {
		if c.Closes() == 0 {
			live++
		}
	}
	return live
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock fires timers only when the test advances it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type recordingListener struct {
	mu       sync.Mutex
	appended []models.ChatMessage
	history  [][]models.ChatMessage
	presence []bool
}

func (l *recordingListener) MessageAppended(msg models.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appended = append(l.appended, msg)
}

func (l *recordingListener) HistoryLoaded(batch []models.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, batch)
}

func (l *recordingListener) PresenceChanged(connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.presence = append(l.presence, connected)
}

func (l *recordingListener) Presence() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.presence...)
}

func newTestController(listener Listener) (*Controller, *fakeDialer, *fakeClock) {
	dialer := &fakeDialer{}
	clock := &fakeClock{}
	ctrl := NewController(ControllerConfig{
		BaseURL:  "ws://localhost:3000",
		Dialer:   dialer,
		Clock:    clock,
		Listener: listener,
	})
	return ctrl, dialer, clock
}

var ann = &models.Identity{ID: 1, Name: "Ann"}
