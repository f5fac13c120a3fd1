// Package user holds the value types that flow between the user store, the
// orchestrator and the persistence backends.
//
// # Record
//
// [Record] is an ordered field map describing one authenticated principal.
// Field order is insertion order and is preserved through JSON encoding, so
// the same logical record always serializes to the same bytes. The
// [PasswordField] is only ever present while a record travels from a user
// store to the orchestrator; [Record.WithoutPassword] removes it.
//
// # Conditions
//
// [Conditions] are ordered equality predicates appended to a user lookup.
// Stores must validate condition field names against a fixed allow-list.
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Import any other multiauth package.
package user
