// Package jwt verifies signed access tokens so their identifiers can be blacklisted.
//
// # Scope
//
// This package only reads tokens. It checks the signature, algorithm, issuer, audience
// and expiry, then extracts jti, sub and exp as [RevocationClaims]. Issuing access tokens
// belongs to the caller's login service.
//
// # What this package must NOT do
//
//   - Access Redis or any storage.
//   - Import tokenguard or internal packages.
//   - Accept a token whose alg differs from the configured method.
package jwt
