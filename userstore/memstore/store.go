// Package memstore is an in-memory user store for tests, demos and
// single-process tools. It enforces the same allow-list and uniqueness rules
// as the SQL store.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrEthical07/multiauth/password"
	"github.com/MrEthical07/multiauth/user"
	"github.com/MrEthical07/multiauth/userstore"
)

// Config mirrors the SQL store configuration without the table name.
type Config struct {
	UsernameField string
	AllowedFields []string
	Conditions    user.Conditions
	Password      password.Config
}

// Store keeps user records keyed by username. It is safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	users         map[string]user.Record
	usernameField string
	allowed       userstore.Fields
	conditions    user.Conditions
	hasher        *password.Hasher
}

// New returns an empty Store.
func New(cfg Config) (*Store, error) {
	if cfg.UsernameField == "" {
		cfg.UsernameField = user.DefaultUsernameField
	}
	if cfg.Password == (password.Config{}) {
		cfg.Password = password.DefaultConfig()
	}
	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	s := &Store{
		users:         make(map[string]user.Record),
		usernameField: cfg.UsernameField,
		allowed:       userstore.NewFields(cfg.AllowedFields...),
		conditions:    append(user.Conditions(nil), cfg.Conditions...),
		hasher:        hasher,
	}
	if err := s.allowed.CheckConditions(s.conditions); err != nil {
		return nil, err
	}
	return s, nil
}

// Len returns the number of registered users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// VerifyUser implements the user store contract.
func (s *Store) VerifyUser(_ context.Context, username, pass string, conds user.Conditions) (user.Record, error) {
	if err := s.allowed.CheckConditions(conds); err != nil {
		return user.Record{}, err
	}

	s.mu.RLock()
	rec, ok := s.users[username]
	s.mu.RUnlock()
	if !ok || !s.matches(rec, conds) {
		s.hasher.VerifyMissing(pass)
		return user.Record{}, userstore.ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(pass, rec.String(user.PasswordField))
	if err != nil {
		return user.Record{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return user.Record{}, userstore.ErrInvalidCredentials
	}
	return rec.Clone(), nil
}

func (s *Store) matches(rec user.Record, conds user.Conditions) bool {
	for _, c := range user.Merge(s.conditions, conds) {
		if c.Field == s.usernameField {
			continue
		}
		v, ok := rec.Get(c.Field)
		if !ok || fmt.Sprint(v) != fmt.Sprint(c.Value) {
			return false
		}
	}
	return true
}

// Register implements the user store contract. Unlike the SQL store the
// existence check and insert happen under one lock.
func (s *Store) Register(_ context.Context, username, pass string, data user.Record) error {
	if data.Has(s.usernameField) {
		return fmt.Errorf("%w: %q", userstore.ErrFieldNotAllowed, s.usernameField)
	}
	if err := s.allowed.CheckRecord(data); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(pass)
	if err != nil {
		return err
	}

	rec := user.New(user.F(s.usernameField, username), user.F(user.PasswordField, hash))
	for _, name := range data.Fields() {
		v, _ := data.Get(name)
		rec.Set(name, v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return userstore.ErrAlreadyExists
	}
	s.users[username] = rec
	return nil
}

// HashPassword implements the user store contract.
func (s *Store) HashPassword(pass string) (string, error) {
	return s.hasher.Hash(pass)
}

// VerifyPassword implements the user store contract.
func (s *Store) VerifyPassword(pass, hash string) (bool, error) {
	return s.hasher.Verify(pass, hash)
}
