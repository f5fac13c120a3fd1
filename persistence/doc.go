// Package persistence defines the session backend contract and the signed
// backend shared by every transport.
//
// # Architecture boundaries
//
// A [Backend] stores one signed session per caller. [Signed] implements the
// full contract on top of a small key/value [Carrier]; transports (cookie,
// redisstore, memory, token) only provide a Carrier. Payload and tag are
// written under the fixed keys "user" and "verification" and are always
// written and deleted together.
//
// IsLoggedIn removes a tampered or expired session before reporting false.
// User is a side-effect-free read and never deletes anything.
//
// Carriers keyed by a server-side session id (redisstore, memory, token)
// implement [Rotator]. Login always moves them to a fresh id; Refresh keeps
// the current one.
//
// # What this package must NOT do
//
//   - Talk to the user store or hash passwords.
//   - Hold a session record containing the password field.
package persistence
