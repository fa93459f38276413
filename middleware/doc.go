// Package middleware guards HTTP handlers with admin-panel sessions.
//
// [Guard] reads the bearer token, asks the engine whether the session is
// live (refreshing it as a side effect) and stores the signed-in user in the
// request context. [RequireRole] narrows a guarded route to one role.
//
// The package only translates HTTP into engine calls; every session
// decision is made by [adminAuth.Engine.CheckAuth].
package middleware
