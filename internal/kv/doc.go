// Package kv provides the key-value abstraction shared by the blacklist, session records
// and rate limiter.
//
// # Backends
//
// Two implementations satisfy [Store]:
//   - [RedisStore]: durable, TTL-native, atomic INCR, SCAN-based pattern enumeration.
//   - [MemoryStore]: process-local map with a parallel expiry map. Expiry is evaluated
//     lazily on read; entries are never swept. [MemoryStore.Keys] returns
//     [ErrPatternScanUnsupported].
//
// [Open] selects the backend once at process start. The selection is never re-evaluated.
//
// # What this package must NOT do
//
//   - Know about tokens, sessions, or rate-limit policy.
//   - Silently switch backends after [Open] returns.
package kv
