// Package cookie stores signed sessions in HTTP cookies.
//
// A Carrier is bound to one request/response pair. Values are base64url
// encoded because session JSON is not a valid cookie value. Writes are also
// kept in memory so that a Get later in the same request sees them, matching
// what the client will send on its next request.
package cookie

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/multiauth/persistence"
	"github.com/MrEthical07/multiauth/signing"
)

// Config controls cookie naming and attributes.
type Config struct {
	Prefix       string
	DurationDays int
	Path         string
	Domain       string
	Secure       bool
	HTTPOnly     bool
	SameSite     http.SameSite
}

// DefaultConfig returns a 14 day HttpOnly, Lax cookie with prefix "mauth_".
func DefaultConfig() Config {
	return Config{
		Prefix:       "mauth_",
		DurationDays: 14,
		Path:         "/",
		Secure:       true,
		HTTPOnly:     true,
		SameSite:     http.SameSiteLaxMode,
	}
}

// TTL returns the configured lifetime.
func (c Config) TTL() time.Duration {
	return time.Duration(c.DurationDays) * 24 * time.Hour
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Prefix == "" {
		c.Prefix = def.Prefix
	}
	if c.DurationDays <= 0 {
		c.DurationDays = def.DurationDays
	}
	if c.Path == "" {
		c.Path = def.Path
	}
	if c.SameSite == 0 {
		c.SameSite = def.SameSite
	}
	return c
}

// Carrier implements persistence.Carrier over a request/response pair.
type Carrier struct {
	w       http.ResponseWriter
	r       *http.Request
	cfg     Config
	pending map[string]*string
}

// NewCarrier binds a carrier to w and r.
func NewCarrier(w http.ResponseWriter, r *http.Request, cfg Config) *Carrier {
	return &Carrier{
		w:       w,
		r:       r,
		cfg:     cfg.withDefaults(),
		pending: make(map[string]*string),
	}
}

// New returns a cookie-backed session backend.
func New(w http.ResponseWriter, r *http.Request, cfg Config, codec *signing.Codec, logger *slog.Logger, opts ...persistence.Option) *persistence.Signed {
	carrier := NewCarrier(w, r, cfg)
	return persistence.NewSigned(persistence.KindCookie, carrier, codec, carrier.cfg.TTL(), logger, opts...)
}

// Name returns the cookie name used for key.
func (c *Carrier) Name(key string) string {
	return c.cfg.Prefix + key
}

// Get implements persistence.Carrier. A value that is not valid base64url is
// returned verbatim so that signature verification rejects it.
func (c *Carrier) Get(_ context.Context, key string) (string, bool, error) {
	if v, ok := c.pending[key]; ok {
		if v == nil {
			return "", false, nil
		}
		return *v, true, nil
	}

	if c.r == nil {
		return "", false, nil
	}
	ck, err := c.r.Cookie(c.Name(key))
	if err != nil {
		return "", false, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(ck.Value)
	if err != nil {
		return ck.Value, true, nil
	}
	return string(decoded), true, nil
}

// Set implements persistence.Carrier. ttl is rounded down to whole seconds.
func (c *Carrier) Set(_ context.Context, key, value string, ttl time.Duration) error {
	http.SetCookie(c.w, c.cookie(key, base64.RawURLEncoding.EncodeToString([]byte(value)), int(ttl/time.Second)))
	v := value
	c.pending[key] = &v
	return nil
}

// Delete implements persistence.Carrier by expiring the cookies.
func (c *Carrier) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		http.SetCookie(c.w, c.cookie(key, "", -1))
		c.pending[key] = nil
	}
	return nil
}

func (c *Carrier) cookie(key, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name(key),
		Value:    value,
		Path:     c.cfg.Path,
		Domain:   c.cfg.Domain,
		MaxAge:   maxAge,
		Secure:   c.cfg.Secure,
		HttpOnly: c.cfg.HTTPOnly,
		SameSite: c.cfg.SameSite,
	}
}
