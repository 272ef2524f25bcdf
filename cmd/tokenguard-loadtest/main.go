// Command tokenguard-loadtest measures refresh-token validate and rotate
// latency, and checks that duplicate concurrent rotations of one token always
// converge on a single successor.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	mathrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/civicpulse/tokenguard"
)

type tokenState struct {
	mu      sync.Mutex
	userID  string
	current string
}

func main() {
	var (
		users       = flag.Int("users", 2000, "number of users to seed, one refresh token each")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase")
		dup         = flag.Int("dup", 8, "concurrent duplicate rotations per token in the race phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		databaseURL = flag.String("database-url", "", "postgres URL for refresh tokens; if empty, DATABASE_URL env or the in-process store is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *dup <= 1 {
		fmt.Fprintln(os.Stderr, "users, concurrency and ops must be > 0; dup must be > 1")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	dbURL := *databaseURL
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}

	cfg := tokenguard.DefaultConfig()
	cfg.Audit.Enabled = false
	cfg.Refresh.DeviceLimit = 0
	cfg.RefreshStore.DatabaseURL = dbURL

	b := tokenguard.New().WithConfig(cfg).WithRedis(client)
	engine, err := b.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	states := make([]tokenState, *users)
	fmt.Printf("seeding %d refresh tokens...\n", *users)
	startSeed := time.Now()
	for i := range states {
		states[i].userID = fmt.Sprintf("load-user-%d", i)
		states[i].current = newToken()
		if _, err := engine.StoreRefreshToken(ctx, tokenguard.StoreRefreshInput{
			UserID: states[i].userID,
			Token:  states[i].current,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(ctx, engine, states, *ops, *concurrency)
	rotateStats := runRotatePhase(ctx, engine, states, *ops, *concurrency)
	raceStats, diverged := runRacePhase(ctx, engine, states, *dup)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("rotate", rotateStats)
	printStats("race", raceStats)
	fmt.Printf("race: diverged=%d\n", diverged)

	snap := engine.MetricsSnapshot()
	fmt.Printf("metrics: rotated=%d retries=%d replays=%d\n",
		snap.Counters[tokenguard.MetricRefreshRotated],
		snap.Counters[tokenguard.MetricRefreshRotationRetry],
		snap.Counters[tokenguard.MetricRefreshReplay],
	)
	if diverged > 0 {
		os.Exit(1)
	}
}

func runValidatePhase(ctx context.Context, engine *tokenguard.Engine, states []tokenState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, func(r *mathrand.Rand, _ int) bool {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		token := st.current
		st.mu.Unlock()
		return engine.ValidateRefreshToken(ctx, token) != nil
	})
}

func runRotatePhase(ctx context.Context, engine *tokenguard.Engine, states []tokenState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, func(r *mathrand.Rand, _ int) bool {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		next := newToken()
		if _, err := engine.RotateRefreshTokenWithGrace(ctx, st.current, next, 0); err != nil {
			return false
		}
		st.current = next
		return true
	})
}

// runRacePhase rotates every token dup times at once and counts tokens whose
// racers did not all receive the same successor.
func runRacePhase(ctx context.Context, engine *tokenguard.Engine, states []tokenState, dup int) (phaseStats, int) {
	var (
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, len(states)*dup)
		failures  int64
		diverged  int
	)

	start := time.Now()
	for i := range states {
		st := &states[i]
		ids := make([]string, dup)
		gate := make(chan struct{})
		var wg sync.WaitGroup
		for d := 0; d < dup; d++ {
			wg.Add(1)
			go func(d int) {
				defer wg.Done()
				<-gate
				t0 := time.Now()
				row, err := engine.RotateRefreshToken(ctx, st.current, newToken())
				elapsed := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					ids[d] = row.ID
				}
				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}(d)
		}
		close(gate)
		wg.Wait()

		for d := 1; d < dup; d++ {
			if ids[d] != ids[0] {
				diverged++
				break
			}
		}
	}
	return computeStats(time.Since(start), latencies, failures), diverged
}

func runPhase(ops, concurrency int, op func(r *mathrand.Rand, i int) bool) phaseStats {
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
			r := mathrand.New(mathrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				ok := op(r, i)
				d := time.Since(t0)
				if !ok {
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
	if len(samples) == 0 {
		return 0
	}
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

func newToken() string {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
