// Package rate provides the Redis-backed failed sign-in counter used by
// the engine's sign-in throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// <prefix>:<pool>:<client>:<username>.
//
// # What this package must NOT do
//
//   - Decide which failures count. The engine records provider
//     rejections only, never host cancellations.
package rate
