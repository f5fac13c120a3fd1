// Package audit implements async event dispatching for authentication outcomes.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured record with timestamp, type, username, backend, IP, metadata.
//
// # What this package must NOT do
//
//   - Decide which events to emit; the Auth orchestrator does that.
//   - Import multiauth or any sibling internal package.
package audit
