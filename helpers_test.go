package multiauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/multiauth/password"
	"github.com/MrEthical07/multiauth/persistence"
	"github.com/MrEthical07/multiauth/user"
	"github.com/MrEthical07/multiauth/userstore/memstore"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func fastPasswordConfig() PasswordConfig {
	return PasswordConfig{
		Algorithm:   string(password.Argon2i),
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
		BcryptCost:  4,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Secret = testSecret
	cfg.Password = fastPasswordConfig()
	return cfg
}

func newTestStore(t *testing.T) *memstore.Store {
	t.Helper()
	store, err := memstore.New(memstore.Config{
		AllowedFields: []string{"role", "active"},
		Password:      testConfig().Password.HasherConfig(),
	})
	if err != nil {
		t.Fatalf("memstore.New failed: %v", err)
	}
	return store
}

// newTestEngine builds an Engine over a fresh memstore. configure may adjust
// the builder before Build.
func newTestEngine(t *testing.T, configure func(*Builder)) (*Engine, *memstore.Store) {
	t.Helper()
	store := newTestStore(t)
	b := New().WithConfig(testConfig()).WithUserStore(store)
	if configure != nil {
		configure(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, store
}

func registerAlice(t *testing.T, a *Auth) {
	t.Helper()
	if err := a.Register(context.Background(), "alice", "pw1", user.New(user.F("role", "admin"))); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}

func aliceRecord() user.Record {
	return user.New(user.F("username", "alice"), user.F("role", "admin"))
}

// fakeBackend is a scriptable persistence.Backend.
type fakeBackend struct {
	kind      persistence.Kind
	loggedIn  bool
	rec       user.Record
	update    bool
	loginErr  error
	logoutErr error
	checkErr  error

	logins    int
	refreshes int
	logouts   int
	refreshed user.Record
	calls     *[]string
}

func newFake(kind persistence.Kind) *fakeBackend {
	return &fakeBackend{kind: kind, update: true}
}

func (f *fakeBackend) record(op string) {
	if f.calls != nil {
		*f.calls = append(*f.calls, string(f.kind)+":"+op)
	}
}

func (f *fakeBackend) Kind() persistence.Kind { return f.kind }

func (f *fakeBackend) Login(_ context.Context, rec user.Record) error {
	f.record("login")
	f.logins++
	if f.loginErr != nil {
		return f.loginErr
	}
	f.loggedIn = true
	f.rec = rec
	return nil
}

func (f *fakeBackend) IsLoggedIn(context.Context) (bool, error) {
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return f.loggedIn, nil
}

func (f *fakeBackend) User(context.Context) (user.Record, error) {
	if !f.loggedIn {
		return user.Record{}, persistence.ErrNoSession
	}
	return f.rec, nil
}

func (f *fakeBackend) Refresh(_ context.Context, rec user.Record) error {
	f.record("refresh")
	f.refreshes++
	f.refreshed = rec
	f.loggedIn = true
	f.rec = rec
	return nil
}

func (f *fakeBackend) UpdateOnRefresh() bool { return f.update }

func (f *fakeBackend) SetUpdateOnRefresh(update bool) { f.update = update }

func (f *fakeBackend) Logout(context.Context) error {
	f.record("logout")
	f.logouts++
	if f.logoutErr != nil {
		return f.logoutErr
	}
	f.loggedIn = false
	f.rec = user.Record{}
	return nil
}
