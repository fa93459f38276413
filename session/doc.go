// Package session provides the token-keyed session store for the
// authentication core, with an in-memory and a Redis implementation.
//
// # Validity
//
// A session is valid while now < ExpiresAt and now-LastActivity < IdleTimeout.
// Validating a live session touches LastActivity, so activity slides under a
// fixed absolute cap. Invalid sessions are evicted by the call that observes
// them and by the periodic [Store.Cleanup] sweep.
//
// # Binary encoding
//
// The Redis store keeps each session as a compact binary record (see
// [Encode]) whose timestamps sit at fixed offsets after the user ID, so the
// validate and refresh scripts can rewrite them in place.
//
// # Architecture boundaries
//
// This package owns session persistence and the user → tokens index. It does
// not look users up, format messages, or decide authentication policy.
//
// # What this package must NOT do
//
//   - Import adminAuth or sibling packages other than credential.
//   - Log session tokens.
package session
