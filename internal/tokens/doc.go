// Package tokens persists refresh-token rows.
//
// # Atomicity
//
// Multi-row mutations run in one transaction per call:
//   - [Store.Issue] evicts the oldest ACTIVE rows beyond the device limit and inserts the
//     new row.
//   - [Store.Supersede] sets revoked_at on the old row only if it is still NULL and
//     inserts the successor. A lost compare-and-swap returns [ErrAlreadyRevoked] and
//     leaves nothing written.
//
// [PostgresStore] serialises both per user with pg_advisory_xact_lock so concurrent
// rotations of one token converge on a single successor. [MemoryStore] gets the same
// guarantee from a single mutex.
//
// # What this package must NOT do
//
//   - See plaintext tokens. Callers pass hashes only.
//   - Decide grace periods, replay handling, or logging policy.
package tokens
