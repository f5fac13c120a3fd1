// Package redisstore keeps signed sessions server-side in Redis.
//
// Keys are "<prefix>:<session id>:user" and "<prefix>:<session id>:verification".
// Redis expiry mirrors the session TTL so abandoned sessions disappear on
// their own. The session id itself is transported by the caller (usually a
// plain cookie); it carries no authority without the signed payload. Login
// always moves the session to a fresh id, which callers read back through
// [Backend.SessionID] and hand to the client.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/multiauth/persistence"
	"github.com/MrEthical07/multiauth/signing"
)

// ErrRedisUnavailable wraps every Redis transport failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Config holds key prefix and session lifetime.
type Config struct {
	Prefix string
	TTL    time.Duration
}

// DefaultConfig returns prefix "mauth:sess" and a 24h TTL.
func DefaultConfig() Config {
	return Config{
		Prefix: "mauth:sess",
		TTL:    24 * time.Hour,
	}
}

// NewSessionID returns a random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Carrier implements persistence.Carrier for one session id.
type Carrier struct {
	redis     redis.UniversalClient
	prefix    string
	sessionID string
}

// NewCarrier binds a carrier to sessionID.
func NewCarrier(client redis.UniversalClient, prefix, sessionID string) *Carrier {
	if prefix == "" {
		prefix = DefaultConfig().Prefix
	}
	return &Carrier{
		redis:     client,
		prefix:    prefix,
		sessionID: sessionID,
	}
}

// Backend is a Redis session backend that exposes its current session id.
type Backend struct {
	*persistence.Signed
	carrier *Carrier
}

// New returns a Redis-backed session backend for sessionID. sessionID may be
// empty before login.
func New(client redis.UniversalClient, sessionID string, cfg Config, codec *signing.Codec, logger *slog.Logger, opts ...persistence.Option) *Backend {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	c := NewCarrier(client, cfg.Prefix, sessionID)
	return &Backend{
		Signed:  persistence.NewSigned(persistence.KindSession, c, codec, cfg.TTL, logger, opts...),
		carrier: c,
	}
}

// SessionID returns the id the session is stored under. It changes on Login.
func (b *Backend) SessionID() string {
	return b.carrier.SessionID()
}

// SessionID returns the bound session id.
func (c *Carrier) SessionID() string {
	return c.sessionID
}

func (c *Carrier) key(name string) string {
	return c.prefix + ":" + c.sessionID + ":" + name
}

// Get implements persistence.Carrier.
func (c *Carrier) Get(ctx context.Context, key string) (string, bool, error) {
	if c.sessionID == "" {
		return "", false, nil
	}

	val, err := c.redis.Get(ctx, c.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return val, true, nil
}

// Set implements persistence.Carrier.
func (c *Carrier) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if c.sessionID == "" {
		return errors.New("redisstore: empty session id")
	}
	if err := c.redis.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Rotate implements persistence.Rotator. Keys under the old id are removed
// before the carrier switches to a new one.
func (c *Carrier) Rotate(ctx context.Context) error {
	if err := c.Delete(ctx, persistence.UserKey, persistence.VerificationKey); err != nil {
		return err
	}
	c.sessionID = NewSessionID()
	return nil
}

// Delete implements persistence.Carrier. Both keys are removed in one
// transaction.
func (c *Carrier) Delete(ctx context.Context, keys ...string) error {
	if c.sessionID == "" || len(keys) == 0 {
		return nil
	}

	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Del(ctx, c.key(key))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
