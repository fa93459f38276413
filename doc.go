// Package adminAuth is the authentication core of the admin panel: password
// check with lockout, a one-time code as second factor, and opaque session
// tokens with absolute and idle expiry.
//
// An [Engine] is built once per process with [New] and [Builder.Build] and is
// safe for concurrent use. Limiter, OTP and session state live in memory or
// in Redis, selected by [StoreConfig.Backend].
//
// # Login ceremony
//
//	Login      PhaseAnonymous   -> PhaseAwaitingOTP
//	VerifyOTP  PhaseAwaitingOTP -> PhaseAuthenticated (token persisted)
//	CheckAuth  restores PhaseAuthenticated from the persisted token
//	Logout     -> PhaseAnonymous
//
// Every expected failure is an [*AuthError] whose Kind is one of
// [KindValidation], [KindRateLimited], [KindInvalidCredential], [KindExpired],
// [KindNotFound] or [KindInternal]; match with errors.Is against
// [ErrRateLimited] and friends. Backend failures always fail closed.
//
// # Background work
//
// [Engine.RunMaintenance] sweeps stale limiter entries, expired sessions and
// expired codes. The audit dispatcher runs one goroutine, stopped by
// [Engine.Close].
package adminAuth
