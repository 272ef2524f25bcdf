// Package middleware adapts tokenguard.Engine checks to net/http handlers.
//
// # Middleware
//
//   - [ClientContext] copies the caller's address and User-Agent into the request
//     context so audit events carry them.
//   - [RequireAccessToken] rejects requests whose bearer token fails signature
//     verification or has been blacklisted.
//   - [RateLimit] applies a fixed-window limit per request key and answers 429
//     with Retry-After once the window is spent.
//
// Every decision is delegated to the Engine. A backend failure fails closed with
// 503 so an outage never grants access.
package middleware
