// Package tokenguard provides the session and refresh-token security layer
// consumed by login, refresh and logout handlers: an access-token blacklist,
// server-side session records, fixed-window rate limiting, and rotating opaque
// refresh tokens with a grace period and idempotent retries.
//
// One [Engine] is constructed at startup through [Builder.Build] and passed to
// every consumer. Engine methods are safe to call from multiple goroutines.
// There is no package-level mutable state.
//
// # Architecture boundaries
//
// tokenguard is the public surface. It exposes [Engine], [Builder], [Config], and
// value types (RefreshToken, RateLimitResult, MetricsSnapshot). Storage, flow
// orchestration, rate limiting, and audit dispatch live under internal/ and are
// never exported.
//
// # Initialization order
//
//  1. Open the key-value backend (Redis, or the in-process fallback).
//  2. Open the refresh-token store (Postgres, or the in-process store) and apply migrations.
//  3. Build the Engine.
//  4. Install auth middleware that calls the Engine.
//
// # What this package must NOT do
//
//   - Generate token randomness. Plaintext refresh tokens arrive from the caller.
//   - Persist or log plaintext refresh tokens or full token hashes.
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Import any sub-package that re-imports tokenguard (no import cycles).
package tokenguard
