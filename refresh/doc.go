// Package refresh defines the refresh-token record, its lifecycle states, and the pure
// helpers used before any storage access: format validation and one-way hashing.
//
// # Token format
//
// Plaintext refresh tokens are 64 lowercase hexadecimal characters (256 bits). They are
// generated by the caller. Only [Hasher.Hash] output is ever persisted, and only
// [HashPrefix] output may appear in logs.
//
// # States
//
//   - [StateActive]: not revoked, not expired.
//   - [StateGrace]: revokedAt is set to an instant still in the future.
//   - [StateDead]: revokedAt has passed, or expiresAt has passed.
//   - [StateAbsent]: no row carries the hash.
//
// # What this package must NOT do
//
//   - Access Redis, Postgres, or any I/O.
//   - Implement rotation or replay policy (internal/flows owns that).
package refresh
