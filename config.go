package multiauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/MrEthical07/multiauth/password"
)

// EnvPrefix is prepended to every variable read by LoadConfigFromEnv.
const EnvPrefix = "MULTIAUTH_"

// Config holds Engine settings. Use DefaultConfig as a starting point; the
// Builder validates the final value.
type Config struct {
	// Secret signs every session payload. It must be at least 32 bytes.
	Secret   string         `env:"SECRET"`
	Cookie   CookieConfig   `envPrefix:"COOKIE_"`
	Session  SessionConfig  `envPrefix:"SESSION_"`
	Token    TokenConfig    `envPrefix:"TOKEN_"`
	Password PasswordConfig `envPrefix:"PASSWORD_"`
	Throttle ThrottleConfig `envPrefix:"THROTTLE_"`
	Audit    AuditConfig    `envPrefix:"AUDIT_"`
	Metrics  MetricsConfig  `envPrefix:"METRICS_"`
}

/*
====================================
BACKEND CONFIG
====================================
*/

// CookieConfig configures cookie backends created by Engine.CookieBackend.
type CookieConfig struct {
	Prefix       string `env:"PREFIX"`
	DurationDays int    `env:"DURATION_DAYS"`
	Path         string `env:"PATH"`
	Domain       string `env:"DOMAIN"`
	Secure       bool   `env:"SECURE"`
	HTTPOnly     bool   `env:"HTTP_ONLY"`
	// SameSite is "lax", "strict" or "none".
	SameSite string `env:"SAME_SITE"`
}

// SessionConfig configures Redis session backends.
type SessionConfig struct {
	RedisPrefix string        `env:"REDIS_PREFIX"`
	TTL         time.Duration `env:"TTL"`
	// CookieName carries the session id between requests.
	CookieName string `env:"COOKIE_NAME"`
}

// TokenConfig configures bearer token backends.
type TokenConfig struct {
	RedisPrefix string        `env:"REDIS_PREFIX"`
	TTL         time.Duration `env:"TTL"`
	// SigningMethod is "hs256" or "ed25519".
	SigningMethod string `env:"SIGNING_METHOD"`
	// PrivateKey is the HS256 secret or an Ed25519 PEM private key.
	PrivateKey string `env:"PRIVATE_KEY"`
	// PublicKey is an Ed25519 PEM public key; unused for HS256.
	PublicKey string `env:"PUBLIC_KEY"`
	Issuer    string `env:"ISSUER"`
	Audience  string `env:"AUDIENCE"`
}

// Enabled reports whether a signing key is configured.
func (c TokenConfig) Enabled() bool {
	return c.PrivateKey != "" || c.PublicKey != ""
}

// PasswordConfig selects the hash algorithm user stores should use.
type PasswordConfig struct {
	// Algorithm is "argon2i", "argon2id" or "bcrypt".
	Algorithm   string `env:"ALGORITHM"`
	Memory      uint32 `env:"MEMORY"`
	Time        uint32 `env:"TIME"`
	Parallelism uint8  `env:"PARALLELISM"`
	SaltLength  uint32 `env:"SALT_LENGTH"`
	KeyLength   uint32 `env:"KEY_LENGTH"`
	BcryptCost  int    `env:"BCRYPT_COST"`
}

// HasherConfig converts to the password package configuration.
func (c PasswordConfig) HasherConfig() password.Config {
	return password.Config{
		Algorithm:   password.Algorithm(c.Algorithm),
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
		BcryptCost:  c.BcryptCost,
	}
}

/*
====================================
SECURITY / OBSERVABILITY CONFIG
====================================
*/

// ThrottleConfig controls the Redis login throttle. It is only active when
// the Builder has a Redis client.
type ThrottleConfig struct {
	Enabled          bool          `env:"ENABLED"`
	EnableIPThrottle bool          `env:"IP"`
	MaxLoginAttempts int           `env:"MAX_ATTEMPTS"`
	Cooldown         time.Duration `env:"COOLDOWN"`
	RedisPrefix      string        `env:"REDIS_PREFIX"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production-leaning defaults. Secret is left empty
// and must be supplied.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Cookie: CookieConfig{
			Prefix:       "mauth_",
			DurationDays: 14,
			Path:         "/",
			Secure:       true,
			HTTPOnly:     true,
			SameSite:     "lax",
		},
		Session: SessionConfig{
			RedisPrefix: "mauth:sess",
			TTL:         24 * time.Hour,
			CookieName:  "mauth_sid",
		},
		Token: TokenConfig{
			RedisPrefix:   "mauth:tok",
			TTL:           time.Hour,
			SigningMethod: "hs256",
		},
		Password: PasswordConfig{
			Algorithm:   string(pw.Algorithm),
			Memory:      pw.Memory,
			Time:        pw.Time,
			Parallelism: pw.Parallelism,
			SaltLength:  pw.SaltLength,
			KeyLength:   pw.KeyLength,
			BcryptCost:  pw.BcryptCost,
		},
		Throttle: ThrottleConfig{
			Enabled:          true,
			MaxLoginAttempts: 5,
			Cooldown:         15 * time.Minute,
			RedisPrefix:      "mauth:rl",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadConfigFromEnv starts from DefaultConfig and overrides every field
// whose MULTIAUTH_* variable is set.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

const minSecretBytes = 32

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if len(c.Secret) < minSecretBytes {
		return fmt.Errorf("Secret must be at least %d bytes", minSecretBytes)
	}

	// Cookie
	if c.Cookie.Prefix == "" {
		return errors.New("Cookie Prefix must not be empty")
	}
	if c.Cookie.DurationDays <= 0 {
		return errors.New("Cookie DurationDays must be > 0")
	}
	if _, err := parseSameSite(c.Cookie.SameSite); err != nil {
		return err
	}
	if strings.EqualFold(c.Cookie.SameSite, "none") && !c.Cookie.Secure {
		return errors.New("Cookie SameSite=none requires Secure")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}

	// Token
	if c.Token.Enabled() {
		if c.Token.TTL <= 0 {
			return errors.New("Token TTL must be > 0")
		}
		if c.Token.SigningMethod != "hs256" && c.Token.SigningMethod != "ed25519" {
			return errors.New("unsupported Token signing method")
		}
		if c.Token.SigningMethod == "hs256" && len(c.Token.PrivateKey) < minSecretBytes {
			return fmt.Errorf("Token hs256 PrivateKey must be at least %d bytes", minSecretBytes)
		}
		if c.Token.SigningMethod == "ed25519" && c.Token.PublicKey == "" {
			return errors.New("Token ed25519 requires PublicKey")
		}
	}

	// Password
	if _, err := password.NewHasher(c.Password.HasherConfig()); err != nil {
		return fmt.Errorf("Password: %w", err)
	}

	// Throttle
	if c.Throttle.Enabled {
		if c.Throttle.MaxLoginAttempts <= 0 {
			return errors.New("Throttle MaxLoginAttempts must be > 0")
		}
		if c.Throttle.Cooldown <= 0 {
			return errors.New("Throttle Cooldown must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}

func parseSameSite(v string) (http.SameSite, error) {
	switch strings.ToLower(v) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("Cookie SameSite %q is invalid", v)
	}
}
