// Command otp-loadtest drives the Redis-backed refresh-token and
// verification-code stores under concurrent load and reports latency.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goBankAuth/internal/stores"
	"github.com/MrEthical07/goBankAuth/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type userState struct {
	userID string
	digest string
	mu     sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 50000, "number of users to seed with a refresh token")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase")
		maxAttempts = flag.Int("max-attempts", 5, "verification attempts per code")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *maxAttempts <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, ops and max-attempts must be > 0")
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

	sessions := session.NewStore(client, *prefix+":rt", 10)
	codes := stores.NewVerificationStore(client, *prefix+":vc")

	states := make([]userState, *users)
	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	for i := 0; i < *users; i++ {
		now := time.Now()
		states[i] = userState{userID: uuid.NewString(), digest: digestFor(strconv.Itoa(i))}
		if err := sessions.Add(ctx, states[i].userID, states[i].digest, now.Add(24*time.Hour), now); err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	lookup := runPhase(states, *ops, *concurrency, func(r *rand.Rand, i int, st *userState) error {
		st.mu.Lock()
		digest := st.digest
		st.mu.Unlock()
		ok, err := sessions.Contains(ctx, st.userID, digest, time.Now())
		if err == nil && !ok {
			err = session.ErrRefreshNotFound
		}
		return err
	})

	rotate := runPhase(states, *ops, *concurrency, func(r *rand.Rand, i int, st *userState) error {
		st.mu.Lock()
		defer st.mu.Unlock()
		next := digestFor(st.digest + strconv.Itoa(i))
		now := time.Now()
		if err := sessions.Rotate(ctx, st.userID, st.digest, next, now.Add(24*time.Hour), now); err != nil {
			return err
		}
		st.digest = next
		return nil
	})

	verify := runPhase(states, *ops, *concurrency, func(r *rand.Rand, i int, st *userState) error {
		st.mu.Lock()
		defer st.mu.Unlock()
		code := fmt.Sprintf("%06d", r.Intn(1000000))
		now := time.Now()
		rec := &stores.VerificationRecord{
			ID:        uuid.NewString(),
			UserID:    st.userID,
			Purpose:   "email",
			CodeHash:  digestFor(code),
			Contact:   "load@bank.test",
			ExpiresAt: now.Add(15 * time.Minute),
			CreatedAt: now,
		}
		if _, err := codes.Issue(ctx, rec, now, time.Minute); err != nil {
			return err
		}
		// One miss then the right code, the common path for a typo.
		if _, err := codes.Attempt(ctx, st.userID, rec.Purpose, digestFor(code+"x"), *maxAttempts, now); err != nil {
			return err
		}
		res, err := codes.Attempt(ctx, st.userID, rec.Purpose, rec.CodeHash, *maxAttempts, now)
		if err != nil {
			return err
		}
		if res.Outcome != stores.OutcomeVerified {
			return fmt.Errorf("unexpected outcome %s", res.Outcome)
		}
		_, err = codes.DeleteIfMatches(ctx, st.userID, rec.Purpose, rec.ID)
		return err
	})

	fmt.Println("---- results ----")
	printStats("lookup", lookup)
	printStats("rotate", rotate)
	printStats("verify", verify)
}

// runPhase executes ops calls of op spread across concurrency workers, each
// against a randomly chosen user.
func runPhase(states []userState, ops, concurrency int, op func(r *rand.Rand, i int, st *userState) error) phaseStats {
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
				st := &states[r.Intn(len(states))]
				t0 := time.Now()
				err := op(r, i, st)
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

func digestFor(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
