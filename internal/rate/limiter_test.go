package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/civicpulse/tokenguard/internal/kv"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newRedisLimiter(t *testing.T, clock *fakeClock) (*miniredis.Miniredis, *Limiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, New(kv.NewRedisStore(client), "tg:", clock.Now)
}

func TestCheckAllowsUpToMaxThenRejects(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_800_000_000, 0)} // divisible by 60
	_, l := newRedisLimiter(t, clock)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := l.Check(ctx, "login:1.2.3.4", 3, time.Minute)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("call %d should be allowed", i)
		}
		if res.Remaining != 3-i {
			t.Fatalf("call %d: expected remaining %d, got %d", i, 3-i, res.Remaining)
		}
	}

	res, err := l.Check(ctx, "login:1.2.3.4", 3, time.Minute)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Allowed || res.Remaining != 0 {
		t.Fatalf("expected rejection with 0 remaining, got %+v", res)
	}
	if want := time.Unix(1_800_000_060, 0); !res.ResetAt.Equal(want) {
		t.Fatalf("expected reset at %v, got %v", want, res.ResetAt)
	}
}

func TestCheckNewWindowResetsAndBoundaryBurst(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_800_000_059, 0)}
	_, l := newRedisLimiter(t, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if res, _ := l.Check(ctx, "k", 3, time.Minute); !res.Allowed {
			t.Fatalf("pre-boundary call %d rejected", i)
		}
	}

	clock.Advance(time.Second)
	for i := 0; i < 3; i++ {
		if res, _ := l.Check(ctx, "k", 3, time.Minute); !res.Allowed {
			t.Fatalf("post-boundary call %d rejected", i)
		}
	}
}

func TestCheckFirstHitSetsTTLToWindowBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_800_000_045, 0)}
	mr, l := newRedisLimiter(t, clock)
	ctx := context.Background()

	if _, err := l.Check(ctx, "k", 5, time.Minute); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	key := "tg:rl:k:1800000000"
	if got := mr.TTL(key); got != 15*time.Second {
		t.Fatalf("expected ttl 15s, got %v", got)
	}

	clock.Advance(5 * time.Second)
	if _, err := l.Check(ctx, "k", 5, time.Minute); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if got := mr.TTL(key); got != 15*time.Second {
		t.Fatalf("later hits must not extend ttl, got %v", got)
	}
}

func TestCheckInvalidArguments(t *testing.T) {
	l := New(kv.NewMemoryStore(), "", nil)
	ctx := context.Background()

	if _, err := l.Check(ctx, "k", 0, time.Minute); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit for max=0, got %v", err)
	}
	if _, err := l.Check(ctx, "k", 1, 500*time.Millisecond); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit for sub-second window, got %v", err)
	}
}

func TestCheckOnMemoryFallback(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_800_000_000, 0)}
	store := kv.NewMemoryStore()
	store.SetClock(clock.Now)
	l := New(store, "", clock.Now)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if res, _ := l.Check(ctx, "k", 2, 10*time.Second); !res.Allowed {
			t.Fatalf("call %d rejected", i)
		}
	}
	if res, _ := l.Check(ctx, "k", 2, 10*time.Second); res.Allowed {
		t.Fatalf("third call should be rejected")
	}

	clock.Advance(10 * time.Second)
	if res, _ := l.Check(ctx, "k", 2, 10*time.Second); !res.Allowed || res.Count != 1 {
		t.Fatalf("expected fresh window, got %+v", res)
	}
}

func TestCheckBackendFailure(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_800_000_000, 0)}
	mr, l := newRedisLimiter(t, clock)
	mr.Close()

	if _, err := l.Check(context.Background(), "k", 1, time.Minute); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}
