// Package stores provides the short-lived OTP challenge store used between
// password verification and OTP verification.
//
// # Design
//
// At most one entry exists per email; Put overwrites. Entries carry the SHA-256
// digest of the code, never the code itself. The Redis implementation keeps a
// versioned binary record with a TTL slightly past the entry's deadline, so an
// expired code is still reported as expired for a short grace period before
// Redis drops it. RecordFailure uses WATCH/MULTI optimistic transactions with
// retry on contention.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for OTP entries. It
// does NOT generate codes, compare them, or decide expiry; the Engine does.
//
// # What this package must NOT do
//
//   - Import adminAuth or any sibling internal package.
//   - Store or log plaintext codes.
package stores
