package tokenguard

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/civicpulse/tokenguard/internal/rate"
)

// CheckRateLimit counts one request for key in the current fixed window and
// reports whether it is within max.
//
// Windows are aligned to multiples of window since the Unix epoch and truncated
// to whole seconds. A caller can issue up to 2*max requests across a window
// boundary. A denial is reported through RateLimitResult.Allowed, never as an
// error.
func (e *Engine) CheckRateLimit(ctx context.Context, key string, max int, window time.Duration) (RateLimitResult, error) {
	if e == nil {
		return RateLimitResult{}, ErrEngineNotReady
	}

	res, err := e.limiter.Check(ctx, key, max, window)
	if err != nil {
		if errors.Is(err, rate.ErrInvalidLimit) {
			return RateLimitResult{}, ErrInvalidRateLimit
		}
		return RateLimitResult{}, e.unavailable("rate.check", err)
	}

	e.metricInc(MetricRateLimitChecked)
	if !res.Allowed {
		e.metricInc(MetricRateLimited)
		// One event per key and window: the first denied request.
		if res.Count == int64(max)+1 {
			e.emitAudit(ctx, auditEventRateLimited, false, "", "", "", errRateLimited, func() map[string]string {
				return map[string]string{
					"key":      key,
					"max":      strconv.Itoa(max),
					"reset_at": strconv.FormatInt(res.ResetAt.Unix(), 10),
				}
			})
		}
	}

	return RateLimitResult{
		Allowed:   res.Allowed,
		Remaining: res.Remaining,
		ResetAt:   res.ResetAt,
	}, nil
}
