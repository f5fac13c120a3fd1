package multiauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/MrEthical07/multiauth/internal/rate"
	"github.com/MrEthical07/multiauth/persistence"
	"github.com/MrEthical07/multiauth/signing"
	"github.com/MrEthical07/multiauth/user"
)

// Auth coordinates one request's persistence backends. It is cheap to create
// and must not be shared between goroutines.
type Auth struct {
	engine   *Engine
	backends []persistence.Backend
}

// AddPersistence registers b. A backend of an already registered kind
// replaces the old one in its original position. Nil backends, including
// typed nil pointers, are rejected with ErrNilBackend.
func (a *Auth) AddPersistence(b persistence.Backend) error {
	if isNilBackend(b) {
		return ErrNilBackend
	}
	for i, existing := range a.backends {
		if existing.Kind() == b.Kind() {
			a.backends[i] = b
			return nil
		}
	}
	a.backends = append(a.backends, b)
	return nil
}

// Persistence returns the backend registered for kind.
func (a *Auth) Persistence(kind persistence.Kind) (persistence.Backend, bool) {
	for _, b := range a.backends {
		if b.Kind() == kind {
			return b, true
		}
	}
	return nil, false
}

// Backends returns the registered backends in registration order.
func (a *Auth) Backends() []persistence.Backend {
	out := make([]persistence.Backend, len(a.backends))
	copy(out, a.backends)
	return out
}

/*
====================================
LOGIN / LOGOUT
====================================
*/

// Login verifies username and password against the user store and, on
// success, stores the user (without its password) in every backend.
//
// An existing session is logged out first. Wrong credentials return
// ErrInvalidCredentials and leave the backends untouched; store failures are
// returned as is. A *FanOutError means verification succeeded but at least
// one backend could not persist the session.
func (a *Auth) Login(ctx context.Context, username, password string, conds user.Conditions) error {
	e := a.engine
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricLoginLatency, time.Since(start))
	}()

	ip := clientIPFromContext(ctx)
	if e.limiter != nil {
		if err := e.limiter.CheckLogin(ctx, username, ip); err != nil {
			return a.throttled(ctx, username, err)
		}
	}

	if a.IsLoggedIn(ctx) {
		if err := a.Logout(ctx); err != nil {
			e.logger.WarnContext(ctx, "multiauth: logout before login failed", slog.Any("error", err))
		}
	}

	rec, err := e.store.VerifyUser(ctx, username, password, conds)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			return err
		}
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType: EventLoginFailure,
			Username:  username,
			Error:     ErrInvalidCredentials.Error(),
		})
		if e.limiter != nil {
			if lerr := e.limiter.IncrementLogin(ctx, username, ip); lerr != nil && !errors.Is(lerr, rate.ErrRateLimited) {
				e.logger.WarnContext(ctx, "multiauth: failed to record login failure", slog.Any("error", lerr))
			}
		}
		return ErrInvalidCredentials
	}

	if e.limiter != nil {
		if err := e.limiter.ResetLogin(ctx, username); err != nil {
			e.logger.WarnContext(ctx, "multiauth: failed to reset login throttle", slog.Any("error", err))
		}
	}

	rec = rec.WithoutPassword()
	ferr := a.fanOut(ctx, "login", func(b persistence.Backend) error {
		return b.Login(ctx, rec)
	})

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: EventLoginSuccess,
		Username:  username,
		Success:   ferr == nil,
	})

	return ferr
}

func (a *Auth) throttled(ctx context.Context, username string, err error) error {
	e := a.engine
	if !errors.Is(err, rate.ErrRateLimited) {
		return fmt.Errorf("login throttle: %w", err)
	}
	e.metrics.Inc(MetricLoginRateLimited)
	e.emitAudit(ctx, AuditEvent{
		EventType: EventLoginRateLimited,
		Username:  username,
		Error:     ErrLoginRateLimited.Error(),
	})
	return ErrLoginRateLimited
}

// Logout clears every backend. It returns nil only when all of them
// succeeded; otherwise a *FanOutError lists the failures.
func (a *Auth) Logout(ctx context.Context) error {
	err := a.fanOut(ctx, "logout", func(b persistence.Backend) error {
		return b.Logout(ctx)
	})

	if e := a.engine; e != nil {
		e.metrics.Inc(MetricLogout)
		e.emitAudit(ctx, AuditEvent{
			EventType: EventLogout,
			Success:   err == nil,
		})
	}
	return err
}

/*
====================================
QUERIES
====================================
*/

// IsLoggedIn reports whether any backend holds a valid session. Every
// backend is asked, so each one discards its own tampered or expired state.
func (a *Auth) IsLoggedIn(ctx context.Context) bool {
	loggedIn := false
	for _, b := range a.backends {
		if a.backendLoggedIn(ctx, b) {
			loggedIn = true
		}
	}
	return loggedIn
}

func (a *Auth) backendLoggedIn(ctx context.Context, b persistence.Backend) bool {
	ok, err := b.IsLoggedIn(ctx)
	if err != nil {
		a.logger().WarnContext(ctx, "multiauth: backend session check failed",
			slog.String("backend", string(b.Kind())),
			slog.Any("error", err),
		)
		return false
	}
	return ok
}

// User returns the first non-empty user record in registration order. The
// record never contains the password field.
func (a *Auth) User(ctx context.Context) (user.Record, bool) {
	for _, b := range a.backends {
		rec, err := b.User(ctx)
		if err != nil {
			if !isSessionAbsent(err) {
				a.logger().WarnContext(ctx, "multiauth: backend user read failed",
					slog.String("backend", string(b.Kind())),
					slog.Any("error", err),
				)
			}
			continue
		}
		if !rec.IsEmpty() {
			return rec, true
		}
	}
	return user.Record{}, false
}

/*
====================================
REFRESH
====================================
*/

// Refresh reconciles backends after activity. If any backend is logged in,
// its user record (the last logged-in backend wins) is pushed into every
// backend that is not logged in and has UpdateOnRefresh enabled. Backends
// already logged in are left alone.
//
// The returned bool reports whether any backend was logged in. A non-nil
// error is a *FanOutError from the push.
func (a *Auth) Refresh(ctx context.Context) (bool, error) {
	loggedIn := false
	var current user.Record
	var negative []persistence.Backend

	for _, b := range a.backends {
		if !a.backendLoggedIn(ctx, b) {
			negative = append(negative, b)
			continue
		}
		rec, err := b.User(ctx)
		if err != nil {
			a.logger().WarnContext(ctx, "multiauth: backend user read failed",
				slog.String("backend", string(b.Kind())),
				slog.Any("error", err),
			)
			negative = append(negative, b)
			continue
		}
		loggedIn = true
		current = rec
	}

	if !loggedIn {
		return false, nil
	}

	var targets []persistence.Backend
	for _, b := range negative {
		if b.UpdateOnRefresh() {
			targets = append(targets, b)
		}
	}
	if len(targets) == 0 {
		return true, nil
	}

	err := a.fanOutTo(ctx, "refresh", targets, func(b persistence.Backend) error {
		return b.Refresh(ctx, current)
	})
	if e := a.engine; e != nil {
		e.metrics.Inc(MetricRefreshPushed)
	}
	return true, err
}

// RefreshUser writes rec into every backend regardless of its current state,
// for example after the user's profile changed.
func (a *Auth) RefreshUser(ctx context.Context, rec user.Record) error {
	rec = rec.WithoutPassword()
	err := a.fanOut(ctx, "refresh", func(b persistence.Backend) error {
		return b.Refresh(ctx, rec)
	})
	if e := a.engine; e != nil {
		e.metrics.Inc(MetricRefreshExplicit)
	}
	return err
}

/*
====================================
REGISTER
====================================
*/

// Register creates a user through the user store. Backends are not touched.
func (a *Auth) Register(ctx context.Context, username, password string, data user.Record) error {
	e := a.engine
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	err := e.store.Register(ctx, username, password, data)
	switch {
	case err == nil:
		e.metrics.Inc(MetricRegisterSuccess)
		e.emitAudit(ctx, AuditEvent{
			EventType: EventRegisterSuccess,
			Username:  username,
			Success:   true,
		})
	case errors.Is(err, ErrAlreadyExists):
		e.metrics.Inc(MetricRegisterDuplicate)
		e.emitAudit(ctx, AuditEvent{
			EventType: EventRegisterDuplicate,
			Username:  username,
			Error:     err.Error(),
		})
	}
	return err
}

/*
====================================
FAN-OUT
====================================
*/

func (a *Auth) fanOut(ctx context.Context, op string, fn func(persistence.Backend) error) error {
	return a.fanOutTo(ctx, op, a.backends, fn)
}

func (a *Auth) fanOutTo(ctx context.Context, op string, backends []persistence.Backend, fn func(persistence.Backend) error) error {
	var failures []BackendFailure
	for _, b := range backends {
		if err := fn(b); err != nil {
			failures = append(failures, BackendFailure{Kind: b.Kind(), Err: err})
			a.backendFailed(ctx, op, b.Kind(), err)
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &FanOutError{Op: op, Failures: failures}
}

func (a *Auth) backendFailed(ctx context.Context, op string, kind persistence.Kind, err error) {
	a.logger().WarnContext(ctx, "multiauth: backend write failed",
		slog.String("op", op),
		slog.String("backend", string(kind)),
		slog.Any("error", err),
	)
	e := a.engine
	if e == nil {
		return
	}
	e.metrics.Inc(MetricBackendWriteFailure)
	e.emitAudit(ctx, AuditEvent{
		EventType: EventBackendWriteFailure,
		Backend:   string(kind),
		Error:     err.Error(),
		Metadata:  map[string]string{"op": op},
	})
}

func (a *Auth) logger() *slog.Logger {
	if a.engine != nil && a.engine.logger != nil {
		return a.engine.logger
	}
	return slog.Default()
}

func isNilBackend(b persistence.Backend) bool {
	if b == nil {
		return true
	}
	v := reflect.ValueOf(b)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Slice, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func isSessionAbsent(err error) bool {
	return errors.Is(err, persistence.ErrNoSession) ||
		errors.Is(err, signing.ErrTampered) ||
		errors.Is(err, signing.ErrExpired)
}
