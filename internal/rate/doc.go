// Package rate implements fixed-window request counters on top of internal/kv.
//
// # Window semantics
//
// For a window of W seconds the counter key is "<prefix>rl:<key>:<floor(now/W)*W>".
// The first INCR in a window sets the TTL to the remaining time before the window
// boundary, so stale counters expire on their own. Up to 2×max requests can pass
// across a boundary; that is inherent to fixed windows.
//
// # What this package must NOT do
//
//   - Decide which callers are throttled or with what budget.
//   - Import tokenguard or any sibling internal package except kv.
package rate
