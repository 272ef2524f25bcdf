// Package security derives a deployment posture report from engine
// configuration and the backends selected at startup.
//
// # What this package must NOT do
//
//   - Perform I/O or inspect live backends.
//   - Import tokenguard or any sibling package.
package security
