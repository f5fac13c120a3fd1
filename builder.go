package multiauth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/multiauth/internal/audit"
	"github.com/MrEthical07/multiauth/internal/rate"
	"github.com/MrEthical07/multiauth/jwt"
	"github.com/MrEthical07/multiauth/signing"
)

// Builder assembles an [Engine]. A Builder can be used for one Build only.
type Builder struct {
	config    Config
	store     UserStore
	redis     redis.UniversalClient
	logger    *slog.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithUserStore sets the store used by Login and Register. Required.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.store = store
	return b
}

// WithRedis enables the Redis-backed session and token backends and the
// login throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the clock used to stamp and check session expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("user store required")
	}

	var codecOpts []signing.Option
	if b.now != nil {
		codecOpts = append(codecOpts, signing.WithClock(b.now))
	}
	codec, err := signing.NewCodec([]byte(cfg.Secret), codecOpts...)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:  cloneConfig(cfg),
		codec:   codec,
		store:   b.store,
		redis:   b.redis,
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- LOGIN THROTTLE --------
	if b.redis != nil && cfg.Throttle.Enabled {
		engine.limiter = rate.New(b.redis, rate.Config{
			Prefix:           cfg.Throttle.RedisPrefix,
			EnableIPThrottle: cfg.Throttle.EnableIPThrottle,
			MaxLoginAttempts: cfg.Throttle.MaxLoginAttempts,
			Cooldown:         cfg.Throttle.Cooldown,
		})
	}

	// -------- BEARER TOKENS --------
	if cfg.Token.Enabled() {
		jm, err := jwt.NewManager(jwt.Config{
			TTL:           cfg.Token.TTL,
			SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
			PrivateKey:    []byte(cfg.Token.PrivateKey),
			PublicKey:     []byte(cfg.Token.PublicKey),
			Issuer:        cfg.Token.Issuer,
			Audience:      cfg.Token.Audience,
			Now:           b.now,
		})
		if err != nil {
			return nil, err
		}
		engine.jwtManager = jm
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return engine, nil
}
