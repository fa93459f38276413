// Package rate provides per-key attempt limiters with lockout for the
// authentication core.
//
// # Semantics
//
// Every key tracks an attempt count, the time of the last attempt and an
// optional lock deadline. A key whose lock deadline is in the future fails
// every admission check. Three entry points mutate a key:
//
//   - Allow counts the call itself and denies the call that reaches the limit.
//   - Admit gates without counting; RecordFailure does the counting.
//   - Reset forgets the key.
//
// Keys are namespaced by the caller (for example "login:<email>" and
// "otp-resend:<email>") so unrelated actions never throttle each other.
//
// # Backends
//
// [Memory] guards a map with one mutex. [Redis] keeps each key in a hash and
// applies every transition in a single Lua script, with a key TTL equal to
// the retention window in place of a cleanup sweep.
//
// # What this package must NOT do
//
//   - Produce user-facing messages or taxonomy errors.
//   - Be imported outside the adminAuth module.
package rate
