// Package signing turns a user record into a signed session payload and back.
//
// A payload is the record's canonical JSON with an "expiration" field (Unix
// seconds) appended. The tag is the lowercase hex HMAC-SHA256 of the payload
// bytes under a long-lived secret. Payload and tag always travel together;
// a payload whose tag does not verify is treated as absent.
//
// # What this package must NOT do
//
//   - Perform I/O or know about transports.
//   - Compare tags with non-constant-time equality.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/MrEthical07/multiauth/user"
)

// ExpirationField is the payload field holding the expiry as Unix seconds.
const ExpirationField = "expiration"

var (
	// ErrTampered is returned when a payload's tag does not match or the
	// payload cannot be parsed.
	ErrTampered = errors.New("session payload tampered")
	// ErrExpired is returned when a correctly signed payload is past its
	// expiration.
	ErrExpired = errors.New("session payload expired")
	// ErrEmptySecret is returned by NewCodec for a missing secret.
	ErrEmptySecret = errors.New("signing secret must not be empty")
)

// Payload is a verified, unexpired session.
type Payload struct {
	User      user.Record
	ExpiresAt time.Time
}

// Codec signs and verifies session payloads. It is safe for concurrent use.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec creates a Codec bound to secret. The secret is copied.
func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Now returns the codec's current time.
func (c *Codec) Now() time.Time {
	return c.now()
}

// Encode appends expiration = now + ttl to a copy of rec, serializes it and
// returns the payload with its tag. Sub-second ttl values are truncated.
func (c *Codec) Encode(rec user.Record, ttl time.Duration) ([]byte, string, error) {
	payload := rec.Clone()
	payload.Set(ExpirationField, c.now().Add(ttl).Unix())

	data, err := payload.MarshalJSON()
	if err != nil {
		return nil, "", err
	}

	return data, c.Sign(data), nil
}

// Decode verifies tag against payload, then parses it and checks expiry.
// The returned record does not contain the expiration field.
func (c *Codec) Decode(payload []byte, tag string) (Payload, error) {
	if !c.Verify(payload, tag) {
		return Payload{}, ErrTampered
	}

	var rec user.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Payload{}, ErrTampered
	}

	expiration, ok := rec.Int64(ExpirationField)
	if !ok {
		return Payload{}, ErrExpired
	}
	if c.now().Unix() > expiration {
		return Payload{}, ErrExpired
	}

	rec.Delete(ExpirationField)
	return Payload{
		User:      rec,
		ExpiresAt: time.Unix(expiration, 0),
	}, nil
}

// Sign returns the hex HMAC-SHA256 of payload.
func (c *Codec) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether tag is the signature of payload. The comparison is
// constant time.
func (c *Codec) Verify(payload []byte, tag string) bool {
	expected := c.Sign(payload)
	return hmac.Equal([]byte(expected), []byte(tag))
}
