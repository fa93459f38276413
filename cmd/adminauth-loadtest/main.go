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

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/adminAuth"
	"github.com/MrEthical07/adminAuth/clientstore"
	"github.com/MrEthical07/adminAuth/credential"
	"github.com/MrEthical07/adminAuth/userdir"
)

const loadPassword = "Load@Test1"

// codeBook keeps the last OTP sent to each email.
type codeBook struct {
	codes sync.Map
}

func (b *codeBook) SendOTP(_ context.Context, email, code string, _ time.Time) error {
	b.codes.Store(email, code)
	return nil
}

func (b *codeBook) code(email string) string {
	v, _ := b.codes.Load(email)
	s, _ := v.(string)
	return s
}

type client struct {
	email   string
	storage *clientstore.Memory
}

func main() {
	var (
		users       = flag.Int("users", 2000, "number of accounts, each signed in once")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "auth checks in the check phase")
		backend     = flag.String("backend", adminAuth.BackendMemory, "store backend: memory or redis")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	cfg := adminAuth.DefaultConfig()
	cfg.Store.Backend = *backend
	cfg.Metrics.EnableLatencyHistograms = true

	dir, clients := seedUsers(*users)
	book := &codeBook{}
	b := adminAuth.New().
		WithConfig(cfg).
		WithDirectory(dir).
		WithOTPSender(book)

	if *backend == adminAuth.BackendRedis {
		rdb, cleanup, err := redisClient(*redisAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		b.WithRedis(rdb)
	}

	engine, err := b.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("signing in %d users with %d workers (%s backend)...\n", len(clients), *concurrency, *backend)
	loginStats := runLoginPhase(ctx, engine, book, clients, *concurrency)
	checkStats := runCheckPhase(ctx, engine, clients, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("login+verify", loginStats)
	printStats("check", checkStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("sessions created=%d refreshed=%d internal errors=%d\n",
		snap.Counters[adminAuth.MetricSessionCreated],
		snap.Counters[adminAuth.MetricSessionRefreshed],
		snap.Counters[adminAuth.MetricInternalError],
	)
}

func seedUsers(n int) (*userdir.Memory, []client) {
	hash := credential.Hash(loadPassword)
	seed := make([]userdir.User, n)
	clients := make([]client, n)
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("load-%d@example.com", i)
		seed[i] = userdir.User{
			ID:           fmt.Sprintf("load-%d", i),
			Email:        email,
			Name:         fmt.Sprintf("Load User %d", i),
			Role:         userdir.RoleUser,
			PasswordHash: hash,
		}
		clients[i] = client{email: email, storage: clientstore.NewMemory()}
	}
	dir, err := userdir.NewMemory(seed...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed users: %v\n", err)
		os.Exit(1)
	}
	return dir, clients
}

func redisClient(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{mr.Addr()},
		})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{addr},
	})
	fmt.Printf("using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}

func runLoginPhase(ctx context.Context, engine *adminAuth.Engine, book *codeBook, clients []client, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, len(clients))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(clients) {
					return
				}
				c := clients[i]
				cctx := adminAuth.WithClientStorage(ctx, c.storage)

				t0 := time.Now()
				_, err := engine.Login(cctx, c.email, loadPassword)
				if err == nil {
					_, err = engine.VerifyOTP(cctx, c.email, book.code(c.email))
				}
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runCheckPhase(ctx context.Context, engine *adminAuth.Engine, clients []client, ops, concurrency int) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				c := clients[r.Intn(len(clients))]
				t0 := time.Now()
				res, err := engine.CheckAuth(adminAuth.WithClientStorage(ctx, c.storage))
				d := time.Since(t0)
				if err != nil || !res.Authenticated {
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
