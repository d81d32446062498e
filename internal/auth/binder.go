package auth

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"taskly-chat/internal/chat"
	"taskly-chat/internal/models"
)

// SessionFactory builds an unmounted chat session for identity.
type SessionFactory func(identity *models.Identity) *chat.Session

// Binder keeps one chat session in step with the store: a non-nil identity
// mounts a session, nil unmounts it, a different identity replaces it.
type Binder struct {
	ctx     context.Context
	store   *Store
	factory SessionFactory
	logger  zerolog.Logger

	mu          sync.Mutex
	session     *chat.Session
	closed      bool
	unsubscribe func()
}

// NewBinder subscribes to store and applies its current identity at once.
func NewBinder(ctx context.Context, store *Store, factory SessionFactory, logger *zerolog.Logger) *Binder {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "auth.binder").Logger()
	}
	b := &Binder{ctx: ctx, store: store, factory: factory, logger: l}
	b.unsubscribe = store.Subscribe(func(*models.Identity) { b.sync() })
	b.sync()
	return b
}

// Session returns the mounted session, or nil while logged out.
func (b *Binder) Session() *chat.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

// Close unsubscribes and unmounts the current session.
func (b *Binder) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.unsubscribe()
	b.unmountLocked()
}

// sync reconciles with the store's current identity rather than the notified
// value, so a notification delivered after a newer change cannot resurrect a
// stale identity.
func (b *Binder) sync() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	identity := b.store.Identity()
	if identity == nil {
		b.unmountLocked()
		return
	}
	if b.session != nil && b.session.Identity().Same(identity) {
		return
	}

	b.unmountLocked()
	session := b.factory(identity)
	if err := session.Mount(b.ctx); err != nil {
		b.logger.Error().Err(err).Int("user_id", identity.ID).Msg("mount chat session failed")
		return
	}
	b.session = session
	b.logger.Info().Int("user_id", identity.ID).Msg("chat session bound")
}

func (b *Binder) unmountLocked() {
	if b.session == nil {
		return
	}
	b.session.Unmount()
	b.session = nil
}
