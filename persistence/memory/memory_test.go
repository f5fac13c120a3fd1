package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/multiauth/persistence"
	"github.com/MrEthical07/multiauth/signing"
	"github.com/MrEthical07/multiauth/user"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemorySessionsAreIsolatedBySessionID(t *testing.T) {
	codec, err := signing.NewCodec([]byte("memory-secret"))
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	store := NewStore()
	ctx := context.Background()

	a := New(store, "sid-a", time.Hour, codec, nil)
	b := New(store, "sid-b", time.Hour, codec, nil)

	if err := a.Login(ctx, user.New(user.F("username", "alice"))); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if ok, _ := b.IsLoggedIn(ctx); ok {
		t.Fatal("expected other session id to stay logged out")
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 keys, got %d", store.Len())
	}
	if a.SessionID() == "sid-a" {
		t.Fatal("expected login to rotate the session id")
	}
	same := New(store, a.SessionID(), time.Hour, codec, nil)
	if ok, _ := same.IsLoggedIn(ctx); !ok {
		t.Fatal("expected the rotated id to carry the session")
	}
	stale := New(store, "sid-a", time.Hour, codec, nil)
	if ok, _ := stale.IsLoggedIn(ctx); ok {
		t.Fatal("expected the pre-login id to stay logged out")
	}

	if err := a.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected store empty after logout, got %d", store.Len())
	}
}

func TestMemoryStoreExpiresKeys(t *testing.T) {
	clk := &clock{now: time.Unix(1700000000, 0)}
	codec, err := signing.NewCodec([]byte("memory-secret"), signing.WithClock(clk.Now))
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	store := NewStore(WithClock(clk.Now))
	b := New(store, "sid", time.Minute, codec, nil)
	ctx := context.Background()

	if err := b.Login(ctx, user.New(user.F("username", "alice"))); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	clk.Advance(time.Minute)
	if ok, _ := b.IsLoggedIn(ctx); !ok {
		t.Fatal("expected session valid at exact TTL")
	}

	clk.Advance(time.Second)
	if _, err := b.User(ctx); !errors.Is(err, persistence.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	codec, err := signing.NewCodec([]byte("memory-secret"))
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	store := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := New(store, string(rune('a'+i)), time.Hour, codec, nil)
			_ = b.Login(ctx, user.New(user.F("n", i)))
			_, _ = b.IsLoggedIn(ctx)
		}(i)
	}
	wg.Wait()

	if store.Len() != 32 {
		t.Fatalf("expected 32 keys, got %d", store.Len())
	}
}
