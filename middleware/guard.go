package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/MrEthical07/multiauth"
	"github.com/MrEthical07/multiauth/persistence"
	"github.com/MrEthical07/multiauth/user"
)

type authContextKey struct{}
type userContextKey struct{}

// BackendsFunc returns the persistence backends for one request.
type BackendsFunc func(w http.ResponseWriter, r *http.Request) ([]persistence.Backend, error)

// AuthFromContext returns the per-request orchestrator set by Guard or Optional.
func AuthFromContext(ctx context.Context) (*multiauth.Auth, bool) {
	a, ok := ctx.Value(authContextKey{}).(*multiauth.Auth)
	return a, ok
}

// UserFromContext returns the logged-in user set by Guard or Optional.
func UserFromContext(ctx context.Context) (user.Record, bool) {
	rec, ok := ctx.Value(userContextKey{}).(user.Record)
	return rec, ok
}

// Guard rejects requests without a valid session with 401.
func Guard(engine *multiauth.Engine, backends BackendsFunc) func(http.Handler) http.Handler {
	return guard(engine, backends, true)
}

// Optional attaches the Auth (and the user, when logged in) without
// rejecting anonymous requests.
func Optional(engine *multiauth.Engine, backends BackendsFunc) func(http.Handler) http.Handler {
	return guard(engine, backends, false)
}

func guard(engine *multiauth.Engine, backends BackendsFunc, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			if ip := clientIP(r); ip != "" {
				ctx = multiauth.WithClientIP(ctx, ip)
			}

			list, err := backends(w, r)
			if err != nil {
				engine.Logger().ErrorContext(ctx, "multiauth: building backends failed", slog.Any("error", err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			a := engine.Auth(list...)

			loggedIn, err := a.Refresh(ctx)
			if err != nil {
				engine.Logger().WarnContext(ctx, "multiauth: refresh push failed", slog.Any("error", err))
			}
			if !loggedIn && required {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, authContextKey{}, a)
			if loggedIn {
				if rec, ok := a.User(ctx); ok {
					ctx = context.WithValue(ctx, userContextKey{}, rec)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CookieBackends serves browser clients from the cookie backend alone.
func CookieBackends(engine *multiauth.Engine) BackendsFunc {
	return func(w http.ResponseWriter, r *http.Request) ([]persistence.Backend, error) {
		return []persistence.Backend{engine.CookieBackend(w, r)}, nil
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
