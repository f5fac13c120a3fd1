package persistence

import (
	"context"
	"errors"

	"github.com/MrEthical07/multiauth/user"
)

// Kind tags a backend variant. The orchestrator keys its registry by Kind.
type Kind string

const (
	KindCookie  Kind = "cookie"
	KindSession Kind = "session"
	KindToken   Kind = "token"
	KindMemory  Kind = "memory"
)

// ErrNoSession is returned by Backend.User when nothing is stored.
var ErrNoSession = errors.New("no session")

// Backend is the capability set every session transport provides.
type Backend interface {
	Kind() Kind
	// Login stores rec with a fresh TTL, replacing any existing session.
	Login(ctx context.Context, rec user.Record) error
	// IsLoggedIn reports whether a valid session is present. A tampered or
	// expired session is logged out before false is returned.
	IsLoggedIn(ctx context.Context) (bool, error)
	// User returns the stored record. It returns ErrNoSession,
	// signing.ErrTampered, signing.ErrExpired or a transport error.
	User(ctx context.Context) (user.Record, error)
	// Refresh re-stores rec with a fresh TTL regardless of current state.
	Refresh(ctx context.Context, rec user.Record) error
	UpdateOnRefresh() bool
	SetUpdateOnRefresh(update bool)
	// Logout removes the session. A nil error means the session is gone.
	Logout(ctx context.Context) error
}
