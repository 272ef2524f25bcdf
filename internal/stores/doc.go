// Package stores provides small kv-backed record stores used by the facade.
//
// # Blacklist
//
// [Blacklist] keeps one marker per revoked access-token identifier. The marker TTL is the
// token's remaining lifetime in whole seconds, so no entry outlives the token it blocks
// and absence always means "not blacklisted".
//
// # What this package must NOT do
//
//   - Import tokenguard or any sibling internal package except kv.
//   - Parse or verify access tokens.
package stores
