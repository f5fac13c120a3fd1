// Package internal holds helpers that are private to multiauth.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - rate: Redis-backed login throttle
//
// Nothing here may appear in the public multiauth API.
package internal
