package multiauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/multiauth/internal/audit"
	"github.com/MrEthical07/multiauth/internal/rate"
	"github.com/MrEthical07/multiauth/jwt"
	"github.com/MrEthical07/multiauth/persistence"
	"github.com/MrEthical07/multiauth/persistence/cookie"
	"github.com/MrEthical07/multiauth/persistence/memory"
	"github.com/MrEthical07/multiauth/persistence/redisstore"
	"github.com/MrEthical07/multiauth/persistence/token"
	"github.com/MrEthical07/multiauth/signing"
)

// ErrRedisRequired is returned by backend constructors that need the Redis
// client passed to Builder.WithRedis.
var ErrRedisRequired = errors.New("redis client required")

// ErrTokensDisabled is returned by TokenBackend when no token signing key is
// configured.
var ErrTokensDisabled = errors.New("token backend not configured")

// Engine holds the long-lived, concurrency-safe parts of the system. Create
// one per process with [Builder] and an [Auth] per request.
type Engine struct {
	config     Config
	codec      *signing.Codec
	store      UserStore
	redis      redis.UniversalClient
	logger     *slog.Logger
	limiter    *rate.Limiter
	jwtManager *jwt.Manager
	audit      *audit.Dispatcher
	metrics    *Metrics
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the validated configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Codec returns the session signing codec.
func (e *Engine) Codec() *signing.Codec {
	return e.codec
}

// Logger returns the Engine logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Metrics returns the shared counters.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// AuditDropped returns the number of audit events dropped by a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDelivered returns the number of audit events handed to the sink.
func (e *Engine) AuditDelivered() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Delivered()
}

// MetricsSnapshot copies the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

// LoginAttempts returns the failed-login counter for username. It is zero
// when the throttle is disabled.
func (e *Engine) LoginAttempts(ctx context.Context, username string) (int, error) {
	if e.limiter == nil {
		return 0, nil
	}
	return e.limiter.GetLoginAttempts(ctx, username)
}

// Auth returns a per-request orchestrator over backends, in order. Nil
// backends are skipped.
func (e *Engine) Auth(backends ...persistence.Backend) *Auth {
	a := &Auth{engine: e}
	for _, b := range backends {
		_ = a.AddPersistence(b)
	}
	return a
}

/*
====================================
BACKEND CONSTRUCTORS
====================================
*/

func (e *Engine) backendOptions() []persistence.Option {
	return []persistence.Option{persistence.WithInvalidSessionHook(e.onInvalidSession)}
}

// CookieBackend returns a cookie backend for one request/response pair.
func (e *Engine) CookieBackend(w http.ResponseWriter, r *http.Request) *persistence.Signed {
	sameSite, _ := parseSameSite(e.config.Cookie.SameSite)
	cfg := cookie.Config{
		Prefix:       e.config.Cookie.Prefix,
		DurationDays: e.config.Cookie.DurationDays,
		Path:         e.config.Cookie.Path,
		Domain:       e.config.Cookie.Domain,
		Secure:       e.config.Cookie.Secure,
		HTTPOnly:     e.config.Cookie.HTTPOnly,
		SameSite:     sameSite,
	}
	return cookie.New(w, r, cfg, e.codec, e.logger, e.backendOptions()...)
}

// SessionBackend returns a Redis session backend bound to sessionID. Callers
// carry the id between requests; after Login they must hand the client the
// rotated id from SessionID.
func (e *Engine) SessionBackend(sessionID string) (*redisstore.Backend, error) {
	if e.redis == nil {
		return nil, ErrRedisRequired
	}
	cfg := redisstore.Config{
		Prefix: e.config.Session.RedisPrefix,
		TTL:    e.config.Session.TTL,
	}
	return redisstore.New(e.redis, sessionID, cfg, e.codec, e.logger, e.backendOptions()...), nil
}

// TokenBackend returns a bearer-token backend. bearer is the token sent by
// the client and may be empty before login.
func (e *Engine) TokenBackend(bearer string) (*token.Backend, error) {
	if e.redis == nil {
		return nil, ErrRedisRequired
	}
	if e.jwtManager == nil {
		return nil, ErrTokensDisabled
	}
	cfg := token.Config{
		Prefix: e.config.Token.RedisPrefix,
		TTL:    e.config.Token.TTL,
	}
	return token.New(e.redis, e.jwtManager, bearer, cfg, e.codec, e.logger, e.backendOptions()...), nil
}

// MemoryBackend returns an in-process backend over store. It uses the
// session TTL.
func (e *Engine) MemoryBackend(store *memory.Store, sessionID string) *memory.Backend {
	return memory.New(store, sessionID, e.config.Session.TTL, e.codec, e.logger, e.backendOptions()...)
}

/*
====================================
OBSERVABILITY
====================================
*/

func (e *Engine) onInvalidSession(ctx context.Context, kind persistence.Kind, reason error) {
	event := EventSessionTampered
	id := MetricSessionTampered
	if errors.Is(reason, signing.ErrExpired) {
		event = EventSessionExpired
		id = MetricSessionExpired
	}
	e.metrics.Inc(id)
	e.emitAudit(ctx, AuditEvent{
		EventType: event,
		Backend:   string(kind),
		Error:     reason.Error(),
	})
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}
