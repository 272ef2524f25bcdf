package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/civicpulse/tokenguard"
)

// KeyFunc derives the rate-limit key of a request. An empty key skips the limit.
type KeyFunc func(r *http.Request) string

// ByClientIP keys requests on scope plus the caller address.
func ByClientIP(scope string, trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		return scope + ":" + ClientIP(r, trustProxy)
	}
}

// RateLimit allows at most max requests per key in each window.
func RateLimit(engine *tokenguard.Engine, key KeyFunc, max int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := engine.CheckRateLimit(r.Context(), k, max, window)
			if err != nil {
				if errors.Is(err, tokenguard.ErrInvalidRateLimit) {
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				retry := int(math.Ceil(time.Until(res.ResetAt).Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
