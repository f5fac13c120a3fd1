package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC key.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrInvalidBearer wraps every rejection from ParseBearer.
	ErrInvalidBearer = errors.New("invalid bearer token")
	// ErrVerifyOnly is returned by CreateBearer when an Ed25519 manager has
	// no private key.
	ErrVerifyOnly = errors.New("manager has no signing key")
)

const maxLeeway = 2 * time.Minute

// Config holds bearer token settings.
type Config struct {
	// TTL is used when CreateBearer is called with a non-positive ttl.
	TTL           time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret, or an Ed25519 key in raw or PEM form.
	PrivateKey []byte
	// PublicKey is an Ed25519 key in raw or PEM form. Without PrivateKey
	// the manager only verifies.
	PublicKey []byte
	Issuer    string
	Audience  string
	Leeway    time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager creates and parses bearer tokens. It is immutable after NewManager
// and safe for concurrent use.
type Manager struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	ttl       time.Duration
	issuer    string
	audience  string
	now       func() time.Time
	parser    *jwt.Parser
}

// BearerClaims are the claims of a bearer token. SID names the server-side
// session holding the signed payload.
type BearerClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// NewManager resolves the keys in cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("jwt: TTL must be > 0")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, fmt.Errorf("jwt: leeway must be within [0, %s]", maxLeeway)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{
		ttl:      cfg.TTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      cfg.Now,
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("jwt: hs256 requires a private key")
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verifyKey = cfg.PrivateKey
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
			m.verifyKey = priv.Public()
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verifyKey = pub
		}
		if m.verifyKey == nil {
			return nil, errors.New("jwt: ed25519 requires a public or private key")
		}
	default:
		return nil, fmt.Errorf("jwt: unsupported signing method %q", cfg.SigningMethod)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(options...)

	return m, nil
}

// CreateBearer signs a token for session sid expiring after ttl. Each token
// gets a fresh random jti.
func (m *Manager) CreateBearer(sid string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(sid) == "" {
		return "", errors.New("jwt: session id must not be empty")
	}
	if m.signKey == nil {
		return "", ErrVerifyOnly
	}
	if ttl <= 0 {
		ttl = m.ttl
	}

	now := m.now()
	claims := BearerClaims{
		SID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	return jwt.NewWithClaims(m.method, claims).SignedString(m.signKey)
}

// ParseBearer verifies token and returns its claims. Tokens without a
// session id or expiry are rejected.
func (m *Manager) ParseBearer(token string) (*BearerClaims, error) {
	claims := &BearerClaims{}
	parsed, err := m.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.verifyKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBearer, err)
	}
	if !parsed.Valid || claims.SID == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBearer, jwt.ErrTokenInvalidClaims)
	}
	return claims, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("jwt: invalid ed25519 private key: %w", err)
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: private key is not ed25519")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("jwt: invalid ed25519 public key: %w", err)
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: public key is not ed25519")
	}
	return edKey, nil
}
