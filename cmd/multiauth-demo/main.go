// Command multiauth-demo serves a small HTTP API over every persistence
// backend at once: a signed cookie, a Redis session keyed by a session id
// cookie, and a bearer token.
//
// Redis comes from REDIS_ADDR or an embedded miniredis. Users live in
// Postgres when DATABASE_URL is set and in memory otherwise. Engine settings
// are read from MULTIAUTH_* variables; MULTIAUTH_SECRET is required and
// MULTIAUTH_TOKEN_PRIVATE_KEY enables bearer tokens. Set
// MULTIAUTH_COOKIE_SECURE=false when testing over plain HTTP.
//
// Endpoints:
//
//	POST /register  JSON {"username":"...", "password":"...", "role":"..."}
//	POST /login     JSON {"username":"...", "password":"..."}
//	POST /logout
//	GET  /me        guarded, accepts cookies or "Authorization: Bearer <token>"
//	GET  /metrics   Prometheus text format
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/multiauth"
	"github.com/MrEthical07/multiauth/user"
	"github.com/MrEthical07/multiauth/userstore/memstore"
	"github.com/MrEthical07/multiauth/userstore/sqlstore"
)

var allowedFields = []string{"role", "active"}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("multiauth-demo failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := multiauth.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	rdb, closeRedis, err := openRedis(logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	store, closeStore, err := openUserStore(logger, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := multiauth.New().
		WithConfig(cfg).
		WithUserStore(store).
		WithRedis(rdb).
		WithLogger(logger).
		WithAuditSink(multiauth.NewLogSink(logger.With(slog.String("component", "audit")))).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:              envOr("ADDR", ":8080"),
		Handler:           newRouter(engine),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openRedis(logger *slog.Logger) (redis.UniversalClient, func(), error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		logger.Info("using redis", slog.String("addr", addr))
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	logger.Info("using miniredis", slog.String("addr", mr.Addr()))
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func openUserStore(logger *slog.Logger, cfg multiauth.Config) (multiauth.UserStore, func(), error) {
	active := user.Where("active", 1)

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		store, err := memstore.New(memstore.Config{
			AllowedFields: allowedFields,
			Password:      cfg.Password.HasherConfig(),
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using in-memory user store")
		return store, func() {}, nil
	}

	db, err := sqlstore.Open(dsn)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { _ = db.Close() }

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sqlstore.Migrate(ctx, db); err != nil {
		closeDB()
		return nil, nil, err
	}

	store, err := sqlstore.New(db, sqlstore.Config{
		AllowedFields: allowedFields,
		Conditions:    active,
		Password:      cfg.Password.HasherConfig(),
	})
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	logger.Info("using postgres user store")
	return store, closeDB, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
