// Command multiauth-loadtest measures session backend throughput against
// Redis (or an embedded miniredis): seeding logins, checking sessions and
// pushing sessions into an in-process backend through Auth.Refresh.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/multiauth"
	"github.com/MrEthical07/multiauth/persistence/memory"
	"github.com/MrEthical07/multiauth/persistence/redisstore"
	"github.com/MrEthical07/multiauth/user"
	"github.com/MrEthical07/multiauth/userstore/memstore"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 100000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (check + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt:sess", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := newEngine(client, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	sids := make([]string, *sessions)
	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	for i := 0; i < *sessions; i++ {
		b, err := engine.SessionBackend("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "session backend failed: %v\n", err)
			os.Exit(1)
		}
		if err := b.Login(ctx, buildUser(i)); err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		sids[i] = b.SessionID()
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	checkStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand) error {
		a := engine.Auth(mustSession(engine, sids[r.Intn(len(sids))]))
		if _, ok := a.User(ctx); !ok {
			return errNotLoggedIn
		}
		return nil
	})

	mem := memory.NewStore()
	refreshStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand) error {
		sid := sids[r.Intn(len(sids))]
		a := engine.Auth(mustSession(engine, sid), engine.MemoryBackend(mem, sid))
		loggedIn, err := a.Refresh(ctx)
		if err != nil {
			return err
		}
		if !loggedIn {
			return errNotLoggedIn
		}
		return nil
	})

	fmt.Println("---- results ----")
	printStats("check", checkStats)
	printStats("refresh", refreshStats)
	fmt.Printf("memory keys: %d\n", mem.Len())
}

var errNotLoggedIn = errors.New("session not logged in")

func newEngine(client redis.UniversalClient, prefix string) (*multiauth.Engine, error) {
	cfg := multiauth.DefaultConfig()
	cfg.Secret = os.Getenv(multiauth.EnvPrefix + "SECRET")
	if cfg.Secret == "" {
		cfg.Secret = "loadtest-secret-loadtest-secret-0"
	}
	cfg.Session.RedisPrefix = prefix
	cfg.Metrics.Enabled = false

	store, err := memstore.New(memstore.Config{Password: cfg.Password.HasherConfig()})
	if err != nil {
		return nil, err
	}
	return multiauth.New().
		WithConfig(cfg).
		WithUserStore(store).
		WithRedis(client).
		Build()
}

func mustSession(engine *multiauth.Engine, sid string) *redisstore.Backend {
	b, err := engine.SessionBackend(sid)
	if err != nil {
		panic(err)
	}
	return b
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func buildUser(i int) user.Record {
	return user.New(
		user.F(user.DefaultUsernameField, fmt.Sprintf("user-%d", i)),
		user.F("role", "member"),
		user.F("active", 1),
	)
}
