package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MrEthical07/multiauth"
	"github.com/MrEthical07/multiauth/metrics/export/prometheus"
	"github.com/MrEthical07/multiauth/middleware"
	"github.com/MrEthical07/multiauth/persistence"
	"github.com/MrEthical07/multiauth/persistence/redisstore"
	"github.com/MrEthical07/multiauth/persistence/token"
	"github.com/MrEthical07/multiauth/user"
)

func newRouter(engine *multiauth.Engine) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	backends := allBackends(engine)

	r.Post("/register", registerHandler(engine))
	r.Post("/login", loginHandler(engine, backends))
	r.With(middleware.Optional(engine, backends)).Post("/logout", logoutHandler)
	r.With(middleware.Guard(engine, backends)).Get("/me", meHandler)
	r.Method(http.MethodGet, "/metrics", prometheus.NewPrometheusExporter(engine).Handler())
	return r
}

// allBackends registers cookie, Redis session and, when a signing key is
// configured, bearer token backends in that order. A session id cookie is
// minted on first contact so Refresh can push into the Redis backend; Login
// replaces it with a fresh id.
func allBackends(engine *multiauth.Engine) middleware.BackendsFunc {
	return func(w http.ResponseWriter, r *http.Request) ([]persistence.Backend, error) {
		session, err := engine.SessionBackend(sessionID(engine, w, r))
		if err != nil {
			return nil, err
		}
		list := []persistence.Backend{engine.CookieBackend(w, r), session}

		presented, _ := middleware.BearerToken(r)
		tok, err := engine.TokenBackend(presented)
		switch {
		case err == nil:
			// A token pushed by Refresh would never reach the client.
			tok.SetUpdateOnRefresh(presented != "")
			list = append(list, tok)
		case !errors.Is(err, multiauth.ErrTokensDisabled):
			return nil, err
		}
		return list, nil
	}
}

func sessionID(engine *multiauth.Engine, w http.ResponseWriter, r *http.Request) string {
	cfg := engine.Config()
	if c, err := r.Cookie(cfg.Session.CookieName); err == nil && c.Value != "" {
		return c.Value
	}

	sid := redisstore.NewSessionID()
	setSessionCookie(w, cfg, sid)
	return sid
}

func setSessionCookie(w http.ResponseWriter, cfg multiauth.Config, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Session.CookieName,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(cfg.Session.TTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

/*
====================================
HANDLERS
====================================
*/

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

func registerHandler(engine *multiauth.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body credentials
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" || body.Password == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		data := user.New(user.F("role", body.Role), user.F("active", 1))
		err := engine.Auth().Register(withClientIP(r), body.Username, body.Password, data)
		switch {
		case err == nil:
			w.WriteHeader(http.StatusCreated)
		case errors.Is(err, multiauth.ErrAlreadyExists):
			http.Error(w, "username taken", http.StatusConflict)
		default:
			engine.Logger().ErrorContext(r.Context(), "register failed", slog.Any("error", err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

func loginHandler(engine *multiauth.Engine, backends middleware.BackendsFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body credentials
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		list, err := backends(w, r)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		a := engine.Auth(list...)

		err = a.Login(withClientIP(r), body.Username, body.Password, nil)
		var fanOut *multiauth.FanOutError
		switch {
		case err == nil, errors.As(err, &fanOut):
			// A partial fan-out still logged the user in somewhere.
		case errors.Is(err, multiauth.ErrInvalidCredentials):
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		case errors.Is(err, multiauth.ErrLoginRateLimited):
			http.Error(w, "too many attempts", http.StatusTooManyRequests)
			return
		default:
			engine.Logger().ErrorContext(r.Context(), "login failed", slog.Any("error", err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		// Login rotated the server-side id; the client must drop the one it sent.
		if b, ok := a.Persistence(persistence.KindSession); ok {
			if sess, ok := b.(*redisstore.Backend); ok {
				setSessionCookie(w, engine.Config(), sess.SessionID())
			}
		}

		resp := map[string]any{}
		if b, ok := a.Persistence(persistence.KindToken); ok {
			if tok, ok := b.(*token.Backend); ok {
				resp["token"] = tok.Bearer()
			}
		}
		if rec, ok := a.User(r.Context()); ok {
			resp["user"] = rec
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func logoutHandler(w http.ResponseWriter, r *http.Request) {
	a, ok := middleware.AuthFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := a.Logout(r.Context()); err != nil {
		http.Error(w, "logout incomplete", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func meHandler(w http.ResponseWriter, r *http.Request) {
	rec, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func withClientIP(r *http.Request) context.Context {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return multiauth.WithClientIP(r.Context(), host)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
