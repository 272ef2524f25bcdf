// Package flows contains the orchestrators behind the Engine's refresh-token and
// logout operations.
//
// Each flow function (RunIssue, RunValidate, RunRotate, RunRevoke, RunLogoutByAccessToken)
// accepts a typed dependency struct and returns a result carrying a failure kind. The
// root package maps kinds onto its public errors, metrics, and audit events.
//
// # Rotation state machine
//
// RunRotate moves a token ACTIVE -> GRACE through a storage compare-and-swap and inserts
// the successor in the same write. A caller that finds the old token already revoked,
// or loses the swap, looks up the newest ACTIVE token of the same user created after the
// old one and returns it. No successor means a replay.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import tokenguard (to avoid import cycles).
//   - Log plaintext tokens or full hashes. Only refresh.HashPrefix output is logged.
package flows
