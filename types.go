package multiauth

import (
	"context"

	"github.com/MrEthical07/multiauth/user"
)

// UserStore verifies credentials and creates users. Implementations live in
// userstore/sqlstore and userstore/memstore.
//
// VerifyUser returns the full record (password hash included) or
// ErrInvalidCredentials. It must not reveal which check failed.
type UserStore interface {
	VerifyUser(ctx context.Context, username, password string, conds user.Conditions) (user.Record, error)
	Register(ctx context.Context, username, password string, data user.Record) error
	HashPassword(password string) (string, error)
	VerifyPassword(password, hash string) (bool, error)
}
