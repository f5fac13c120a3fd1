// Package memory keeps signed sessions in process memory.
//
// It is intended for tests and single-node development. A Store is shared
// across requests; each backend is bound to one session id within it. Login
// moves the backend to a fresh id, readable through [Backend.SessionID].
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/multiauth/persistence"
	"github.com/MrEthical07/multiauth/signing"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Store is a concurrency-safe map with per-key expiry.
type Store struct {
	mu    sync.Mutex
	items map[string]entry
	now   func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore returns an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		items: make(map[string]entry),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of live keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for k, e := range s.items {
		if s.expired(e, now) {
			delete(s.items, k)
			continue
		}
		n++
	}
	return n
}

func (s *Store) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		return "", false
	}
	if s.expired(e, s.now()) {
		delete(s.items, key)
		return "", false
	}
	return e.value, true
}

func (s *Store) set(key, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.items[key] = e
}

func (s *Store) delete(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.items, k)
	}
}

func (s *Store) expired(e entry, now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Carrier implements persistence.Carrier for one session id in a Store.
type Carrier struct {
	store     *Store
	sessionID string
}

// NewCarrier binds a carrier to sessionID.
func NewCarrier(store *Store, sessionID string) *Carrier {
	return &Carrier{store: store, sessionID: sessionID}
}

// Backend is an in-memory session backend that exposes its session id.
type Backend struct {
	*persistence.Signed
	carrier *Carrier
}

// New returns an in-memory session backend.
func New(store *Store, sessionID string, ttl time.Duration, codec *signing.Codec, logger *slog.Logger, opts ...persistence.Option) *Backend {
	c := NewCarrier(store, sessionID)
	return &Backend{
		Signed:  persistence.NewSigned(persistence.KindMemory, c, codec, ttl, logger, opts...),
		carrier: c,
	}
}

// SessionID returns the id the session is stored under. It changes on Login.
func (b *Backend) SessionID() string {
	return b.carrier.sessionID
}

func (c *Carrier) key(name string) string {
	return c.sessionID + ":" + name
}

// Get implements persistence.Carrier.
func (c *Carrier) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c.store.get(c.key(key))
	return v, ok, nil
}

// Set implements persistence.Carrier.
func (c *Carrier) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.store.set(c.key(key), value, ttl)
	return nil
}

// Rotate implements persistence.Rotator.
func (c *Carrier) Rotate(ctx context.Context) error {
	if err := c.Delete(ctx, persistence.UserKey, persistence.VerificationKey); err != nil {
		return err
	}
	c.sessionID = uuid.NewString()
	return nil
}

// Delete implements persistence.Carrier.
func (c *Carrier) Delete(_ context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	c.store.delete(full...)
	return nil
}
