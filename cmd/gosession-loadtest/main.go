// Command gosession-loadtest drives access validation and refresh rotation
// against a Redis-backed engine and prints latency percentiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/cache"
	"github.com/MrEthical07/goSession/directory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// sessionState is one login lineage. mu serializes rotation so each worker
// presents the current refresh token.
type sessionState struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func main() {
	var (
		sessions    = flag.Int("sessions", 2000, "number of logins to seed")
		users       = flag.Int("users", 100, "number of distinct users")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (validate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "gs", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	engine, err := newEngine(client, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d users, %d sessions...\n", *users, *sessions)
	startSeed := time.Now()
	states, err := seed(ctx, engine, *users, *sessions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(len(states), *ops, *concurrency, 7919, func(i int) error {
		_, err := engine.ValidateAccess(ctx, states[i].access)
		return err
	})
	refreshStats := runPhase(len(states), *ops, *concurrency, 6151, func(i int) error {
		st := states[i]
		st.mu.Lock()
		defer st.mu.Unlock()

		resp, err := engine.Refresh(ctx, st.refresh)
		if err != nil {
			return err
		}
		st.access, st.refresh = resp.AccessToken, resp.RefreshToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("reuse_detected=%d rotated=%d\n",
		snap.Counters[goSession.MetricRefreshReuseDetected], snap.Counters[goSession.MetricSessionRotated])
}

func newEngine(client redis.UniversalClient, prefix string) (*goSession.Engine, error) {
	cfg := goSession.DefaultConfig()
	cfg.JWT.Secret = []byte("loadtest-secret-loadtest-secret-0")
	// Seeding is dominated by password hashing, so the cost is kept low.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	return goSession.New().
		WithConfig(cfg).
		WithStore(cache.NewRedis(client, prefix)).
		WithUserDirectory(directory.NewMemory()).
		Build()
}

func seed(ctx context.Context, engine *goSession.Engine, users, sessions int) ([]*sessionState, error) {
	const pass = "loadtest-password"
	for u := 0; u < users; u++ {
		if _, err := engine.Register(ctx, goSession.RegisterInput{
			Name:     fmt.Sprintf("user %d", u),
			Email:    fmt.Sprintf("user%d@loadtest.local", u),
			Password: pass,
		}); err != nil {
			return nil, err
		}
	}

	states := make([]*sessionState, sessions)
	for i := range states {
		resp, err := engine.Login(ctx, goSession.LoginInput{
			Email:    fmt.Sprintf("user%d@loadtest.local", i%users),
			Password: pass,
		})
		if err != nil {
			return nil, err
		}
		states[i] = &sessionState{access: resp.AccessToken, refresh: resp.RefreshToken}
	}
	return states, nil
}

func runPhase(n, ops, concurrency int, seedMul int64, op func(i int) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seedMul))
			for {
				if int(atomic.AddInt64(&cursor, 1))-1 >= ops {
					return
				}
				idx := r.Intn(n)

				t0 := time.Now()
				err := op(idx)
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
	return computeStats(time.Since(start), latencies, failures)
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
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
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
