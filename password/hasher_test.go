package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func fastConfig(algorithm Algorithm) Config {
	return Config{
		Algorithm:   algorithm,
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
		BcryptCost:  bcrypt.MinCost,
	}
}

func mustHasher(t *testing.T, cfg Config) *Hasher {
	t.Helper()
	h, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	return h
}

func TestHashAndVerifyPerAlgorithm(t *testing.T) {
	cases := []struct {
		algorithm Algorithm
		prefix    string
	}{
		{Argon2i, "$argon2i$v=19$m=8192,t=1,p=1$"},
		{Argon2id, "$argon2id$v=19$m=8192,t=1,p=1$"},
		{Bcrypt, "$2a$04$"},
	}

	for _, tc := range cases {
		t.Run(string(tc.algorithm), func(t *testing.T) {
			h := mustHasher(t, fastConfig(tc.algorithm))

			hash, err := h.Hash("pw1")
			if err != nil {
				t.Fatalf("Hash failed: %v", err)
			}
			if !strings.HasPrefix(hash, tc.prefix) {
				t.Fatalf("unexpected hash format: %s", hash)
			}

			ok, err := h.Verify("pw1", hash)
			if err != nil || !ok {
				t.Fatalf("expected password to verify, ok=%v err=%v", ok, err)
			}

			ok, err = h.Verify("pw2", hash)
			if err != nil {
				t.Fatalf("Verify returned error on mismatch: %v", err)
			}
			if ok {
				t.Fatal("expected wrong password to fail")
			}
		})
	}
}

func TestDefaultAlgorithmIsArgon2i(t *testing.T) {
	cfg := fastConfig("")
	h := mustHasher(t, cfg)
	if h.Algorithm() != Argon2i {
		t.Fatalf("expected argon2i, got %s", h.Algorithm())
	}
	if DefaultConfig().Algorithm != Argon2i {
		t.Fatal("expected DefaultConfig to select argon2i")
	}
}

func TestHashSaltsEachCall(t *testing.T) {
	h := mustHasher(t, fastConfig(Argon2i))
	a, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	b, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct hashes for distinct salts")
	}
}

func TestVerifyAcrossAlgorithms(t *testing.T) {
	bc := mustHasher(t, fastConfig(Bcrypt))
	legacy, err := bc.Hash("pw1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	argon := mustHasher(t, fastConfig(Argon2i))
	ok, err := argon.Verify("pw1", legacy)
	if err != nil || !ok {
		t.Fatalf("expected argon2i hasher to verify bcrypt hash, ok=%v err=%v", ok, err)
	}

	upgrade, err := argon.NeedsUpgrade(legacy)
	if err != nil {
		t.Fatalf("NeedsUpgrade failed: %v", err)
	}
	if !upgrade {
		t.Fatal("expected bcrypt hash to need upgrade under argon2i config")
	}
}

func TestNeedsUpgradeOnWeakerParams(t *testing.T) {
	weak := mustHasher(t, fastConfig(Argon2i))
	hash, err := weak.Hash("pw1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	stronger := fastConfig(Argon2i)
	stronger.Time = 2
	strong := mustHasher(t, stronger)

	upgrade, err := strong.NeedsUpgrade(hash)
	if err != nil {
		t.Fatalf("NeedsUpgrade failed: %v", err)
	}
	if !upgrade {
		t.Fatal("expected upgrade for weaker time cost")
	}

	upgrade, err = weak.NeedsUpgrade(hash)
	if err != nil {
		t.Fatalf("NeedsUpgrade failed: %v", err)
	}
	if upgrade {
		t.Fatal("expected no upgrade for matching params")
	}
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	h := mustHasher(t, fastConfig(Argon2i))

	bad := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2i$v=18$m=8192,t=1,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAA",
		"$argon2i$v=19$m=1,t=1,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAA",
		"$argon2i$v=19$m=8192,t=1$AAAAAAAAAAAAAAAAAAAAAA$AAAA",
		"$scrypt$v=19$m=8192,t=1,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAA",
	}
	for _, encoded := range bad {
		if ok, err := h.Verify("pw1", encoded); err == nil || ok {
			t.Fatalf("expected error for %q, ok=%v err=%v", encoded, ok, err)
		}
	}
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	h := mustHasher(t, fastConfig(Argon2i))
	if _, err := h.Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
}

func TestNewHasherValidatesConfig(t *testing.T) {
	cfg := fastConfig(Argon2i)
	cfg.SaltLength = 8
	if _, err := NewHasher(cfg); err == nil {
		t.Fatal("expected error for short salt")
	}

	cfg = fastConfig(Bcrypt)
	cfg.BcryptCost = 99
	if _, err := NewHasher(cfg); err == nil {
		t.Fatal("expected error for bcrypt cost out of range")
	}

	if _, err := NewHasher(Config{Algorithm: "md5"}); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestVerifyMissingUsesConfiguredAlgorithm(t *testing.T) {
	for _, algorithm := range []Algorithm{Argon2i, Argon2id, Bcrypt} {
		h := mustHasher(t, fastConfig(algorithm))
		h.VerifyMissing("anything")
		h.VerifyMissing("")

		if got := detect(h.missingHash); got != algorithm {
			t.Fatalf("%s: expected missing-user hash of the same algorithm, got %q", algorithm, got)
		}
		if ok, err := h.Verify("anything", h.missingHash); err != nil || ok {
			t.Fatalf("%s: missing-user hash must not match, ok=%v err=%v", algorithm, ok, err)
		}
	}
}
