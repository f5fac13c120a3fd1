// Package middleware adapts a multiauth.Engine to net/http.
//
// # Guards
//
//   - [Guard]: rejects requests without a session, auto-refreshes lagging
//     backends and injects the Auth and user record into the context.
//   - [Optional]: same as Guard but lets anonymous requests through.
//   - [RequireBearer]: Guard over the bearer-token backend only.
//
// Backends are chosen per request by a [BackendsFunc], so one Engine can
// serve cookie, session and token clients side by side.
//
// # What this package must NOT do
//
//   - Verify credentials or sign payloads (delegated to the Engine).
//   - Make authorization decisions beyond "has a session".
package middleware
