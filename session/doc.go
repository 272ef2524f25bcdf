// Package session manages short-lived, opaque session records on top of internal/kv.
//
// # Encoding
//
// Records are stored as a one-byte schema version followed by a JSON body. [Decode]
// rejects unknown versions instead of guessing.
//
// # Identifiers
//
// A session id is "<userID>.<ULID>". The ULID carries a millisecond timestamp and a
// random suffix, and the user prefix lets [Manager.DeleteAllForUser] narrow its scan.
//
// # What this package must NOT do
//
//   - Import tokenguard, jwt, or refresh (no upward imports).
//   - Make authentication decisions.
//   - Store plaintext credentials in [Record.Data].
package session
