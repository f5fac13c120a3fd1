// Package token implements a bearer-token session backend.
//
// The client holds a JWT naming a session id; the signed session payload is
// stored in Redis under that id. Login always mints a new session id, even when
// a bearer was presented, and a fresh bearer is issued on every write, exposed through
// [Backend.Bearer]. Logout revokes the Redis payload, so a still-valid JWT no
// longer authenticates. A Redis failure during revocation is returned to the
// caller.
package token

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/multiauth/jwt"
	"github.com/MrEthical07/multiauth/persistence"
	"github.com/MrEthical07/multiauth/persistence/redisstore"
	"github.com/MrEthical07/multiauth/signing"
)

// Config holds the Redis key prefix and session lifetime.
type Config struct {
	Prefix string
	TTL    time.Duration
}

// DefaultConfig returns prefix "mauth:tok" and a 1h TTL.
func DefaultConfig() Config {
	return Config{
		Prefix: "mauth:tok",
		TTL:    time.Hour,
	}
}

// Backend is a persistence.Backend that also exposes the current bearer.
type Backend struct {
	*persistence.Signed
	carrier *carrier
}

// New returns a token backend. bearer is the token presented by the client
// and may be empty.
func New(client redis.UniversalClient, manager *jwt.Manager, bearer string, cfg Config, codec *signing.Codec, logger *slog.Logger, opts ...persistence.Option) *Backend {
	def := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &carrier{
		client:  client,
		manager: manager,
		prefix:  cfg.Prefix,
		bearer:  bearer,
		logger:  logger,
	}
	return &Backend{
		Signed:  persistence.NewSigned(persistence.KindToken, c, codec, cfg.TTL, logger, opts...),
		carrier: c,
	}
}

// Bearer returns the token the client should present on later requests, or
// "" when logged out.
func (b *Backend) Bearer() string {
	return b.carrier.bearer
}

// SessionID returns the session id named by the current bearer, or "".
func (b *Backend) SessionID() string {
	return b.carrier.sessionID(context.Background())
}

type carrier struct {
	client  redis.UniversalClient
	manager *jwt.Manager
	prefix  string
	logger  *slog.Logger

	bearer string
	sid    string
	parsed bool
}

func (c *carrier) sessionID(ctx context.Context) string {
	if c.parsed {
		return c.sid
	}
	c.parsed = true
	if c.bearer == "" {
		return ""
	}

	claims, err := c.manager.ParseBearer(c.bearer)
	if err != nil {
		c.logger.WarnContext(ctx, "multiauth: rejected bearer token", slog.Any("error", err))
		return ""
	}
	c.sid = claims.SID
	return c.sid
}

func (c *carrier) store(ctx context.Context) *redisstore.Carrier {
	return redisstore.NewCarrier(c.client, c.prefix, c.sessionID(ctx))
}

func (c *carrier) Get(ctx context.Context, key string) (string, bool, error) {
	if c.sessionID(ctx) == "" {
		return "", false, nil
	}
	return c.store(ctx).Get(ctx, key)
}

// Set writes key under the current session id, minting one first if needed.
// Writing the payload reissues the bearer so its expiry tracks the session.
func (c *carrier) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if c.sessionID(ctx) == "" {
		c.sid = redisstore.NewSessionID()
	}

	if key == persistence.UserKey {
		bearer, err := c.manager.CreateBearer(c.sid, ttl)
		if err != nil {
			return err
		}
		c.bearer = bearer
	}

	return c.store(ctx).Set(ctx, key, value, ttl)
}

// Rotate drops whatever session the presented bearer names and binds the
// carrier to a new id. The old JWT stays signed but points at nothing.
func (c *carrier) Rotate(ctx context.Context) error {
	if err := c.Delete(ctx, persistence.UserKey, persistence.VerificationKey); err != nil {
		return err
	}
	c.sid = redisstore.NewSessionID()
	c.bearer = ""
	c.parsed = true
	return nil
}

func (c *carrier) Delete(ctx context.Context, keys ...string) error {
	if c.sessionID(ctx) == "" {
		return nil
	}
	if err := c.store(ctx).Delete(ctx, keys...); err != nil {
		return err
	}
	c.bearer = ""
	c.sid = ""
	return nil
}
