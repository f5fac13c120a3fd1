// Package multiauth orchestrates username/password authentication across one
// or more session persistence backends.
//
// An [Engine] is built once with [Builder] and holds the long-lived parts:
// the [UserStore], the signing codec, the login throttle, audit and metrics.
// Each request creates an [Auth] from the Engine with the backends that apply
// to it (cookie, Redis session, bearer token, in-memory) and calls Login,
// IsLoggedIn, User, Refresh or Logout.
//
// Every backend stores the user record as a payload signed with HMAC-SHA256
// under the Engine secret. A payload whose tag does not verify, or whose
// expiration has passed, is treated as absent and removed the next time the
// backend is asked whether it is logged in.
//
// # Fan-out
//
// Login, RefreshUser and Logout apply to every backend in registration order.
// They are best effort: a failing backend does not stop the others and is
// never rolled back. Failures are reported together as a [*FanOutError].
//
// # Architecture boundaries
//
// This package owns the orchestration only. Transports live under
// persistence/, user stores under userstore/, and the package must not
// import either concrete store so that callers can bring their own.
package multiauth
