package persistence

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/multiauth/signing"
	"github.com/MrEthical07/multiauth/user"
)

const (
	// UserKey holds the serialized session payload.
	UserKey = "user"
	// VerificationKey holds the payload's hex HMAC tag.
	VerificationKey = "verification"
)

// Carrier is the key/value surface a transport exposes to [Signed].
//
// Get returns ok=false when the key is absent. Set stores value for ttl; a
// transport may round ttl to its own granularity. Delete ignores missing keys.
type Carrier interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Rotator is implemented by carriers keyed by a server-side session id.
// Rotate drops the current id's keys and binds the carrier to a fresh id, so a
// new login never lands under an id a client presented.
type Rotator interface {
	Rotate(ctx context.Context) error
}

// InvalidSessionHook is called when IsLoggedIn discards a tampered or expired
// session. reason is signing.ErrTampered or signing.ErrExpired.
type InvalidSessionHook func(ctx context.Context, kind Kind, reason error)

// Option configures a [Signed] backend.
type Option func(*Signed)

// WithInvalidSessionHook registers a callback for discarded sessions.
func WithInvalidSessionHook(hook InvalidSessionHook) Option {
	return func(s *Signed) {
		s.onInvalid = hook
	}
}

// WithUpdateOnRefresh sets the initial UpdateOnRefresh flag (default true).
func WithUpdateOnRefresh(update bool) Option {
	return func(s *Signed) {
		s.updateOnRefresh.Store(update)
	}
}

// Signed is a [Backend] storing codec-signed payloads in a [Carrier].
type Signed struct {
	kind            Kind
	carrier         Carrier
	codec           *signing.Codec
	ttl             time.Duration
	logger          *slog.Logger
	onInvalid       InvalidSessionHook
	updateOnRefresh atomic.Bool
}

// NewSigned builds a signed backend. A nil logger falls back to slog.Default.
func NewSigned(kind Kind, carrier Carrier, codec *signing.Codec, ttl time.Duration, logger *slog.Logger, opts ...Option) *Signed {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Signed{
		kind:    kind,
		carrier: carrier,
		codec:   codec,
		ttl:     ttl,
		logger:  logger,
	}
	s.updateOnRefresh.Store(true)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kind returns the backend tag.
func (s *Signed) Kind() Kind {
	return s.kind
}

// TTL returns the session lifetime applied on Login and Refresh.
func (s *Signed) TTL() time.Duration {
	return s.ttl
}

// Login implements Backend. Carriers implementing [Rotator] are moved to a
// fresh session id first.
func (s *Signed) Login(ctx context.Context, rec user.Record) error {
	if r, ok := s.carrier.(Rotator); ok {
		if err := r.Rotate(ctx); err != nil {
			return err
		}
	}
	return s.store(ctx, rec)
}

// Refresh implements Backend. It keeps the current session id.
func (s *Signed) Refresh(ctx context.Context, rec user.Record) error {
	return s.store(ctx, rec)
}

func (s *Signed) store(ctx context.Context, rec user.Record) error {
	payload, tag, err := s.codec.Encode(rec.WithoutPassword(), s.ttl)
	if err != nil {
		return err
	}

	if err := s.carrier.Set(ctx, UserKey, string(payload), s.ttl); err != nil {
		return err
	}
	return s.carrier.Set(ctx, VerificationKey, tag, s.ttl)
}

// IsLoggedIn implements Backend.
func (s *Signed) IsLoggedIn(ctx context.Context) (bool, error) {
	_, err := s.load(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNoSession):
		return false, nil
	case errors.Is(err, signing.ErrTampered), errors.Is(err, signing.ErrExpired):
		s.discard(ctx, err)
		return false, nil
	default:
		return false, err
	}
}

// User implements Backend.
func (s *Signed) User(ctx context.Context) (user.Record, error) {
	payload, err := s.load(ctx)
	if err != nil {
		return user.Record{}, err
	}
	return payload.User, nil
}

// Logout implements Backend.
func (s *Signed) Logout(ctx context.Context) error {
	return s.carrier.Delete(ctx, UserKey, VerificationKey)
}

// UpdateOnRefresh implements Backend.
func (s *Signed) UpdateOnRefresh() bool {
	return s.updateOnRefresh.Load()
}

// SetUpdateOnRefresh implements Backend.
func (s *Signed) SetUpdateOnRefresh(update bool) {
	s.updateOnRefresh.Store(update)
}

func (s *Signed) load(ctx context.Context) (signing.Payload, error) {
	raw, ok, err := s.carrier.Get(ctx, UserKey)
	if err != nil {
		return signing.Payload{}, err
	}
	if !ok || raw == "" {
		return signing.Payload{}, ErrNoSession
	}

	// A payload without its tag is tampered, not absent.
	tag, _, err := s.carrier.Get(ctx, VerificationKey)
	if err != nil {
		return signing.Payload{}, err
	}

	return s.codec.Decode([]byte(raw), tag)
}

func (s *Signed) discard(ctx context.Context, reason error) {
	label := "tampered"
	if errors.Is(reason, signing.ErrExpired) {
		label = "expired"
	}
	s.logger.WarnContext(ctx, "multiauth: discarding invalid session",
		slog.String("backend", string(s.kind)),
		slog.String("reason", label),
	)

	if err := s.Logout(ctx); err != nil {
		s.logger.WarnContext(ctx, "multiauth: failed to clear invalid session",
			slog.String("backend", string(s.kind)),
			slog.Any("error", err),
		)
	}

	if s.onInvalid != nil {
		s.onInvalid(ctx, s.kind, reason)
	}
}
