package middleware

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/multiauth"
	"github.com/MrEthical07/multiauth/persistence"
)

// BearerBackends serves API clients from the token backend, reading the
// token from the Authorization header.
func BearerBackends(engine *multiauth.Engine) BackendsFunc {
	return func(_ http.ResponseWriter, r *http.Request) ([]persistence.Backend, error) {
		token, _ := BearerToken(r)
		b, err := engine.TokenBackend(token)
		if err != nil {
			return nil, err
		}
		return []persistence.Backend{b}, nil
	}
}

// RequireBearer is Guard over BearerBackends.
func RequireBearer(engine *multiauth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, BearerBackends(engine))
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. ok is false for other schemes and empty tokens.
func BearerToken(r *http.Request) (token string, ok bool) {
	const prefix = "Bearer "
	value := r.Header.Get("Authorization")
	if !strings.HasPrefix(value, prefix) {
		return "", false
	}

	token = value[len(prefix):]
	if token == "" {
		return "", false
	}
	return token, true
}
