package token

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/multiauth/jwt"
	"github.com/MrEthical07/multiauth/persistence"
	"github.com/MrEthical07/multiauth/persistence/redisstore"
	"github.com/MrEthical07/multiauth/signing"
	"github.com/MrEthical07/multiauth/user"
)

type fixture struct {
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	manager *jwt.Manager
	codec   *signing.Codec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	manager, err := jwt.NewManager(jwt.Config{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("token-backend-secret-key"),
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	codec, err := signing.NewCodec([]byte("token-payload-secret"))
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	return &fixture{mr: mr, rdb: rdb, manager: manager, codec: codec}
}

func (f *fixture) backend(bearer string) *Backend {
	return New(f.rdb, f.manager, bearer, Config{}, f.codec, nil)
}

func TestTokenLoginIssuesBearer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.backend("")
	if b.Kind() != persistence.KindToken {
		t.Fatalf("unexpected kind %q", b.Kind())
	}
	if ok, _ := b.IsLoggedIn(ctx); ok {
		t.Fatal("expected no session without bearer")
	}

	if err := b.Login(ctx, user.New(user.F("username", "alice"))); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	bearer := b.Bearer()
	if bearer == "" || b.SessionID() == "" {
		t.Fatal("expected bearer and session id after login")
	}
	if !f.mr.Exists("mauth:tok:" + b.SessionID() + ":user") {
		t.Fatalf("expected payload in redis, keys=%v", f.mr.Keys())
	}

	next := f.backend(bearer)
	got, err := next.User(ctx)
	if err != nil {
		t.Fatalf("User failed: %v", err)
	}
	if got.Username("") != "alice" {
		t.Fatalf("unexpected user %v", got.Map())
	}
}

func TestTokenRefreshKeepsSessionID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.backend("")
	if err := b.Login(ctx, user.New(user.F("username", "alice"))); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	sid := b.SessionID()
	first := b.Bearer()

	if err := b.Refresh(ctx, user.New(user.F("username", "alice"), user.F("role", "admin"))); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if b.SessionID() != sid {
		t.Fatalf("expected session id %q kept, got %q", sid, b.SessionID())
	}
	if b.Bearer() == first {
		t.Fatal("expected bearer reissued on refresh")
	}
}

func TestTokenLogoutRevokesBearer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.backend("")
	if err := b.Login(ctx, user.New(user.F("username", "alice"))); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	bearer := b.Bearer()

	if err := b.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if b.Bearer() != "" {
		t.Fatal("expected bearer cleared after logout")
	}

	replay := f.backend(bearer)
	if ok, _ := replay.IsLoggedIn(ctx); ok {
		t.Fatal("expected revoked bearer to be rejected")
	}
}

func TestTokenLogoutSurfacesRedisFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.backend("")
	if err := b.Login(ctx, user.New(user.F("username", "alice"))); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	f.mr.Close()

	if err := b.Logout(ctx); !errors.Is(err, redisstore.ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if b.Bearer() == "" {
		t.Fatal("expected bearer kept when revocation failed")
	}
}

func TestTokenForgedBearerIsLoggedOut(t *testing.T) {
	f := newFixture(t)
	b := f.backend("eyJhbGciOiJIUzI1NiJ9.eyJzaWQiOiJ4In0.bad")

	ok, err := b.IsLoggedIn(context.Background())
	if err != nil || ok {
		t.Fatalf("expected forged bearer rejected, ok=%v err=%v", ok, err)
	}
}

func TestTokenLoginWithStaleBearerMintsNewSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bob := f.backend("")
	if err := bob.Login(ctx, user.New(user.F("username", "bob"))); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	stale := bob.Bearer()
	staleSID := bob.SessionID()
	if err := bob.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	// The next login arrives carrying bob's revoked but still-signed bearer.
	alice := f.backend(stale)
	if err := alice.Login(ctx, user.New(user.F("username", "alice"), user.F("role", "admin"))); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if alice.SessionID() == staleSID {
		t.Fatal("login must not reuse the session id named by a presented bearer")
	}
	if alice.Bearer() == stale {
		t.Fatal("expected a fresh bearer")
	}

	replay := f.backend(stale)
	if ok, _ := replay.IsLoggedIn(ctx); ok {
		got, _ := replay.User(ctx)
		t.Fatalf("revoked bearer authenticated as %v", got.Map())
	}

	fresh := f.backend(alice.Bearer())
	got, err := fresh.User(ctx)
	if err != nil || got.Username("") != "alice" {
		t.Fatalf("expected alice behind the new bearer, got %v err=%v", got.Map(), err)
	}
}

func TestTokenLoginDropsLiveSessionOfPresentedBearer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.backend("")
	if err := first.Login(ctx, user.New(user.F("username", "alice"))); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	oldSID := first.SessionID()

	again := f.backend(first.Bearer())
	if err := again.Login(ctx, user.New(user.F("username", "alice"))); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if f.mr.Exists("mauth:tok:" + oldSID + ":user") {
		t.Fatalf("expected previous session removed, keys=%v", f.mr.Keys())
	}
}

type requestIDKey struct{}

// ctxRecorder keeps the request id found in the context of each record.
type ctxRecorder struct {
	seen []any
}

func (h *ctxRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (h *ctxRecorder) Handle(ctx context.Context, _ slog.Record) error {
	h.seen = append(h.seen, ctx.Value(requestIDKey{}))
	return nil
}

func (h *ctxRecorder) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *ctxRecorder) WithGroup(string) slog.Handler      { return h }

func TestRejectedBearerIsLoggedWithRequestContext(t *testing.T) {
	f := newFixture(t)
	rec := &ctxRecorder{}
	b := New(f.rdb, f.manager, "not-a-jwt", Config{}, f.codec, slog.New(rec))

	ctx := context.WithValue(context.Background(), requestIDKey{}, "req-42")
	if ok, err := b.IsLoggedIn(ctx); err != nil || ok {
		t.Fatalf("expected rejected bearer, ok=%v err=%v", ok, err)
	}
	if len(rec.seen) != 1 || rec.seen[0] != "req-42" {
		t.Fatalf("expected one warning carrying the request context, got %v", rec.seen)
	}
}
