// Package rate implements the Redis-backed login throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// "<prefix>:u:<username>" for the per-username counter and
// "<prefix>:ip:<addr>" for the optional per-IP counter.
//
// # What this package must NOT do
//
//   - Decide whether a login succeeded; callers report failures and successes.
//   - Be imported outside the multiauth module.
package rate
