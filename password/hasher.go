package password

import (
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Algorithm selects the hash function used for new hashes.
type Algorithm string

const (
	// Argon2i is the default algorithm.
	Argon2i Algorithm = "argon2i"
	// Argon2id is the side-channel hardened argon2 variant.
	Argon2id Algorithm = "argon2id"
	// Bcrypt uses golang.org/x/crypto/bcrypt.
	Bcrypt Algorithm = "bcrypt"
)

var (
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrUnsupportedAlgorithm is returned for an unknown algorithm or hash format.
	ErrUnsupportedAlgorithm = errors.New("unsupported password hash algorithm")
)

// Config holds hashing parameters. Argon2 fields are ignored for bcrypt and
// BcryptCost is ignored for argon2.
type Config struct {
	Algorithm   Algorithm
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	BcryptCost  int
}

// DefaultConfig returns argon2i parameters suitable for interactive logins.
func DefaultConfig() Config {
	return Config{
		Algorithm:   Argon2i,
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		BcryptCost:  bcrypt.DefaultCost,
	}
}

// Hasher hashes and verifies passwords. It is safe for concurrent use.
type Hasher struct {
	config Config
	argon  *argon2Hasher

	missingOnce sync.Once
	missingHash string
}

// NewHasher validates cfg and returns a Hasher. An empty algorithm selects
// [Argon2i].
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = Argon2i
	}

	h := &Hasher{config: cfg}
	switch cfg.Algorithm {
	case Argon2i, Argon2id:
		argon, err := newArgon2(cfg.Algorithm, argon2Params{
			memory:      cfg.Memory,
			time:        cfg.Time,
			parallelism: cfg.Parallelism,
			saltLength:  cfg.SaltLength,
			keyLength:   cfg.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		h.argon = argon
	case Bcrypt:
		if cfg.BcryptCost == 0 {
			h.config.BcryptCost = bcrypt.DefaultCost
		}
		if h.config.BcryptCost < bcrypt.MinCost || h.config.BcryptCost > bcrypt.MaxCost {
			return nil, errors.New("bcrypt cost out of range")
		}
	default:
		return nil, ErrUnsupportedAlgorithm
	}

	return h, nil
}

// Algorithm returns the algorithm used for new hashes.
func (h *Hasher) Algorithm() Algorithm {
	return h.config.Algorithm
}

// Hash returns an encoded hash of password using the configured algorithm.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	if h.config.Algorithm == Bcrypt {
		out, err := bcrypt.GenerateFromPassword([]byte(password), h.config.BcryptCost)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}

	return h.argon.hash(password)
}

// Verify checks password against encodedHash, whatever algorithm produced it.
// A mismatch returns false with a nil error; a malformed hash returns an error.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	switch detect(encodedHash) {
	case Bcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	case Argon2i, Argon2id:
		return verifyArgon2(password, encodedHash)
	default:
		return false, ErrUnsupportedAlgorithm
	}
}

// VerifyMissing does the work of one Verify against a hash made with the
// current configuration and discards the result. Stores call it when no user
// matched, so an unknown username costs as much as a wrong password.
func (h *Hasher) VerifyMissing(password string) {
	h.missingOnce.Do(func() {
		h.missingHash, _ = h.Hash("multiauth-missing-user")
	})
	if h.missingHash != "" {
		_, _ = h.Verify(password, h.missingHash)
	}
}

// NeedsUpgrade reports whether encodedHash was produced by another algorithm
// or with weaker parameters than the current configuration.
func (h *Hasher) NeedsUpgrade(encodedHash string) (bool, error) {
	algorithm := detect(encodedHash)
	if algorithm == "" {
		return false, ErrUnsupportedAlgorithm
	}
	if algorithm != h.config.Algorithm {
		return true, nil
	}

	if algorithm == Bcrypt {
		cost, err := bcrypt.Cost([]byte(encodedHash))
		if err != nil {
			return false, err
		}
		return cost < h.config.BcryptCost, nil
	}

	return h.argon.needsUpgrade(encodedHash)
}

func detect(encodedHash string) Algorithm {
	switch {
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return Argon2id
	case strings.HasPrefix(encodedHash, "$argon2i$"):
		return Argon2i
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		return Bcrypt
	default:
		return ""
	}
}
