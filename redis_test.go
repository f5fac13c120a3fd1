package multiauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/multiauth/persistence"
	"github.com/MrEthical07/multiauth/persistence/redisstore"
	"github.com/MrEthical07/multiauth/user"
)

const testTokenKey = "fedcba9876543210fedcba9876543210"

func newRedisEngine(t *testing.T, configure func(*Config)) (*Engine, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	cfg.Token.PrivateKey = testTokenKey
	cfg.Throttle.MaxLoginAttempts = 3
	cfg.Throttle.Cooldown = time.Minute
	if configure != nil {
		configure(&cfg)
	}

	engine, err := New().
		WithConfig(cfg).
		WithUserStore(newTestStore(t)).
		WithRedis(rdb).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, mr
}

func TestSessionBackendSurvivesAcrossRequests(t *testing.T) {
	engine, mr := newRedisEngine(t, nil)
	ctx := context.Background()
	sid := redisstore.NewSessionID()

	sess, err := engine.SessionBackend(sid)
	if err != nil {
		t.Fatalf("SessionBackend failed: %v", err)
	}
	a := engine.Auth(sess)
	registerAlice(t, a)
	if err := a.Login(ctx, "alice", "pw1", nil); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if sess.SessionID() == sid {
		t.Fatal("expected login to rotate the session id")
	}
	if !mr.Exists("mauth:sess:" + sess.SessionID() + ":user") {
		t.Fatal("expected session payload in redis")
	}

	again, _ := engine.SessionBackend(sess.SessionID())
	got, ok := engine.Auth(again).User(ctx)
	if !ok || !got.Equal(aliceRecord()) {
		t.Fatalf("expected alice on the next request, got %v", got.Map())
	}
}

func TestTokenBackendLoginAndLogoutFailure(t *testing.T) {
	engine, mr := newRedisEngine(t, nil)
	ctx := context.Background()

	tok, err := engine.TokenBackend("")
	if err != nil {
		t.Fatalf("TokenBackend failed: %v", err)
	}
	a := engine.Auth(tok)
	registerAlice(t, a)
	if err := a.Login(ctx, "alice", "pw1", nil); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	bearer := tok.Bearer()
	if bearer == "" {
		t.Fatal("expected a bearer after login")
	}

	next, _ := engine.TokenBackend(bearer)
	if !engine.Auth(next).IsLoggedIn(ctx) {
		t.Fatal("expected bearer to authenticate the next request")
	}

	mr.Close()
	err = engine.Auth(next).Logout(ctx)
	if !errors.Is(err, ErrBackendWrite) || !errors.Is(err, redisstore.ErrRedisUnavailable) {
		t.Fatalf("expected logout failure to surface, got %v", err)
	}
	var fan *FanOutError
	if !errors.As(err, &fan) || !fan.Failed(persistence.KindToken) {
		t.Fatalf("expected token failure, got %v", err)
	}
}

func TestTokenBackendRequiresKey(t *testing.T) {
	engine, _ := newRedisEngine(t, func(cfg *Config) { cfg.Token.PrivateKey = "" })
	if _, err := engine.TokenBackend(""); !errors.Is(err, ErrTokensDisabled) {
		t.Fatalf("expected ErrTokensDisabled, got %v", err)
	}
}

func TestRedisBackendsRequireClient(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	if _, err := engine.SessionBackend("sid"); !errors.Is(err, ErrRedisRequired) {
		t.Fatalf("expected ErrRedisRequired, got %v", err)
	}
	if _, err := engine.TokenBackend(""); !errors.Is(err, ErrRedisRequired) {
		t.Fatalf("expected ErrRedisRequired, got %v", err)
	}
}

func TestLoginThrottleLocksAfterFailures(t *testing.T) {
	engine, _ := newRedisEngine(t, nil)
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	a := engine.Auth(newFake("b"))
	registerAlice(t, a)

	for i := 0; i < 3; i++ {
		if err := a.Login(ctx, "alice", "wrong", nil); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
	if n, err := engine.LoginAttempts(ctx, "alice"); err != nil || n != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d err=%v", n, err)
	}

	if err := a.Login(ctx, "alice", "pw1", nil); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}
	if got := engine.Metrics().Value(MetricLoginRateLimited); got != 1 {
		t.Fatalf("expected 1 rate-limited login, got %d", got)
	}
}

func TestLoginThrottleResetsOnSuccess(t *testing.T) {
	engine, mr := newRedisEngine(t, nil)
	ctx := context.Background()

	a := engine.Auth(newFake("b"))
	registerAlice(t, a)

	_ = a.Login(ctx, "alice", "wrong", nil)
	_ = a.Login(ctx, "alice", "wrong", nil)
	if err := a.Login(ctx, "alice", "pw1", nil); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if n, _ := engine.LoginAttempts(ctx, "alice"); n != 0 {
		t.Fatalf("expected counter reset, got %d", n)
	}

	for i := 0; i < 3; i++ {
		_ = a.Login(ctx, "alice", "wrong", nil)
	}
	mr.FastForward(time.Minute + time.Second)
	if err := a.Login(ctx, "alice", "pw1", nil); err != nil {
		t.Fatalf("expected lockout window to pass, got %v", err)
	}
}

func TestLoginThrottleDisabled(t *testing.T) {
	engine, _ := newRedisEngine(t, func(cfg *Config) { cfg.Throttle.Enabled = false })
	ctx := context.Background()

	a := engine.Auth(newFake("b"))
	registerAlice(t, a)
	for i := 0; i < 5; i++ {
		_ = a.Login(ctx, "alice", "wrong", nil)
	}
	if err := a.Login(ctx, "alice", "pw1", nil); err != nil {
		t.Fatalf("expected no throttle, got %v", err)
	}
}

func TestStaleBearerDoesNotInheritNextLogin(t *testing.T) {
	engine, _ := newRedisEngine(t, nil)
	ctx := context.Background()

	reg := engine.Auth()
	registerAlice(t, reg)
	if err := reg.Register(ctx, "bob", "pw2", user.New(user.F("role", "user"))); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	bobTok, _ := engine.TokenBackend("")
	bob := engine.Auth(bobTok)
	if err := bob.Login(ctx, "bob", "pw2", nil); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	stale := bobTok.Bearer()
	if err := bob.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	aliceTok, _ := engine.TokenBackend(stale)
	if err := engine.Auth(aliceTok).Login(ctx, "alice", "pw1", nil); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	replay, _ := engine.TokenBackend(stale)
	if got, ok := engine.Auth(replay).User(ctx); ok {
		t.Fatalf("revoked bearer authenticated as %v", got.Map())
	}
	next, _ := engine.TokenBackend(aliceTok.Bearer())
	if got, ok := engine.Auth(next).User(ctx); !ok || !got.Equal(aliceRecord()) {
		t.Fatalf("expected alice behind the new bearer, got %v", got.Map())
	}
}
