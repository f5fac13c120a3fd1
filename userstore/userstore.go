// Package userstore holds what user store implementations share: the error
// sentinels callers match on and the field allow-list check.
//
// Field names used in lookup conditions or registration data are never taken
// verbatim from callers. Each store is configured with the set of names it
// accepts and rejects anything else with ErrFieldNotAllowed before building
// a query.
package userstore

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/multiauth/user"
)

var (
	// ErrInvalidCredentials is returned for an unknown user, a wrong password
	// or unmet conditions. The cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAlreadyExists is returned by Register when the username is taken.
	ErrAlreadyExists = errors.New("user already exists")
	// ErrFieldNotAllowed is returned when a condition or data field is not in
	// the store's allow-list.
	ErrFieldNotAllowed = errors.New("field not allowed")
)

// Fields is an allow-list of column/field names.
type Fields map[string]struct{}

// NewFields builds an allow-list from names.
func NewFields(names ...string) Fields {
	f := make(Fields, len(names))
	for _, n := range names {
		f[n] = struct{}{}
	}
	return f
}

// Allows reports whether name is permitted.
func (f Fields) Allows(name string) bool {
	_, ok := f[name]
	return ok
}

// CheckConditions returns ErrFieldNotAllowed for the first condition field
// outside the allow-list.
func (f Fields) CheckConditions(conds user.Conditions) error {
	for _, c := range conds {
		if !f.Allows(c.Field) {
			return fmt.Errorf("%w: %q", ErrFieldNotAllowed, c.Field)
		}
	}
	return nil
}

// CheckRecord returns ErrFieldNotAllowed for the first record field outside
// the allow-list. The password field is always rejected because stores set
// it from the hashed password.
func (f Fields) CheckRecord(rec user.Record) error {
	for _, name := range rec.Fields() {
		if name == user.PasswordField || !f.Allows(name) {
			return fmt.Errorf("%w: %q", ErrFieldNotAllowed, name)
		}
	}
	return nil
}
