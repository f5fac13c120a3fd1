package multiauth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/multiauth/persistence"
	"github.com/MrEthical07/multiauth/userstore"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown user, a wrong
	// password or unmet conditions.
	ErrInvalidCredentials = userstore.ErrInvalidCredentials
	// ErrAlreadyExists is returned by Register when the username is taken.
	ErrAlreadyExists = userstore.ErrAlreadyExists
	// ErrFieldNotAllowed is returned when a condition or data field is outside
	// the store's allow-list.
	ErrFieldNotAllowed = userstore.ErrFieldNotAllowed
	// ErrBackendWrite is matched by every FanOutError.
	ErrBackendWrite = errors.New("backend write failed")
	// ErrNilBackend is returned by AddPersistence for a nil backend.
	ErrNilBackend = errors.New("nil persistence backend")
	// ErrLoginRateLimited is returned when the login throttle refuses an attempt.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrEngineNotReady is returned when an Engine method is used before Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// BackendFailure is one backend's error during a fan-out.
type BackendFailure struct {
	Kind persistence.Kind
	Err  error
}

// FanOutError reports the backends that failed during a best-effort
// operation. Backends that succeeded are not rolled back.
type FanOutError struct {
	Op       string
	Failures []BackendFailure
}

func (e *FanOutError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Kind, f.Err))
	}
	return fmt.Sprintf("%s: %v (%s)", e.Op, ErrBackendWrite, strings.Join(parts, "; "))
}

// Unwrap exposes ErrBackendWrite and every backend cause to errors.Is/As.
func (e *FanOutError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures)+1)
	out = append(out, ErrBackendWrite)
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

// Failed reports whether kind is among the failures.
func (e *FanOutError) Failed(kind persistence.Kind) bool {
	for _, f := range e.Failures {
		if f.Kind == kind {
			return true
		}
	}
	return false
}
