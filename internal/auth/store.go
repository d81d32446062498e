package auth

import (
	"context"
	"errors"
	"sort"
	"sync"

	"taskly-chat/internal/models"
)

// ErrNoCredentials is returned by Login when no login client is configured.
var ErrNoCredentials = errors.New("auth: login not available")

// LoginClient authenticates a user against the REST API.
type LoginClient interface {
	Login(ctx context.Context, identifier, password string) (models.LoginData, error)
}

// TokenSink receives the bearer token whenever the identity is replaced.
// A LoginClient that also implements it is cleared on logout.
type TokenSink interface {
	SetToken(token string)
}

// Store holds the authenticated identity. A nil identity means logged out.
type Store struct {
	client LoginClient

	mu       sync.RWMutex
	identity *models.Identity
	token    string
	subs     map[int]func(*models.Identity)
	nextSub  int
}

// NewStore creates an empty store. client may be nil when identities are set directly.
func NewStore(client LoginClient) *Store {
	return &Store{client: client, subs: make(map[int]func(*models.Identity))}
}

// Login authenticates and publishes the returned identity.
func (s *Store) Login(ctx context.Context, identifier, password string) error {
	if s.client == nil {
		return ErrNoCredentials
	}
	data, err := s.client.Login(ctx, identifier, password)
	if err != nil {
		return err
	}
	user := data.User
	s.Set(&user, data.Token)
	return nil
}

// Set replaces the identity and notifies subscribers when it changed.
func (s *Store) Set(identity *models.Identity, token string) {
	var next *models.Identity
	if identity != nil {
		id := *identity
		next = &id
	}

	s.mu.Lock()
	changed := !s.identity.Same(next)
	s.identity = next
	s.token = token
	if sink, ok := s.client.(TokenSink); ok {
		sink.SetToken(token)
	}
	subs := s.snapshotSubs()
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range subs {
		fn(copyIdentity(next))
	}
}

// Logout clears the identity and the client's bearer token.
func (s *Store) Logout() {
	s.Set(nil, "")
}

// Identity returns a copy of the current identity, or nil.
func (s *Store) Identity() *models.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyIdentity(s.identity)
}

// Token returns the bearer token of the current identity.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Subscribe registers fn for identity changes and returns its cancel func.
// fn is called outside the store lock.
func (s *Store) Subscribe(fn func(*models.Identity)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) snapshotSubs() []func(*models.Identity) {
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(*models.Identity), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.subs[id])
	}
	return out
}

func copyIdentity(identity *models.Identity) *models.Identity {
	if identity == nil {
		return nil
	}
	id := *identity
	return &id
}
