package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/civicpulse/tokenguard/internal/kv"
)

// Result is the outcome of one counted request.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Count     int64
}

// Limiter counts requests per key in fixed windows.
type Limiter struct {
	store  kv.Store
	prefix string
	now    func() time.Time
}

// New creates a [Limiter] over store. A nil now defaults to time.Now.
func New(store kv.Store, prefix string, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		store:  store,
		prefix: prefix,
		now:    now,
	}
}

// Check counts one request for key and reports whether it is within max for the
// current window. The window is truncated to whole seconds.
func (l *Limiter) Check(ctx context.Context, key string, max int, window time.Duration) (Result, error) {
	windowSec := int64(window / time.Second)
	if max <= 0 || windowSec <= 0 {
		return Result{}, ErrInvalidLimit
	}

	nowSec := l.now().Unix()
	start := floorDiv(nowSec, windowSec) * windowSec
	end := start + windowSec

	counterKey := l.prefix + "rl:" + key + ":" + strconv.FormatInt(start, 10)
	count, err := l.incrementWithTTL(ctx, counterKey, time.Duration(end-nowSec)*time.Second)
	if err != nil {
		return Result{}, err
	}

	remaining := int64(max) - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= int64(max),
		Remaining: int(remaining),
		ResetAt:   time.Unix(end, 0),
		Count:     count,
	}, nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.store.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if ttl < time.Second {
			ttl = time.Second
		}
		if _, err := l.store.Expire(ctx, key, ttl); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	return count, nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
