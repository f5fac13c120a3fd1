// Package password implements password hashing and verification for user stores.
//
// # Algorithms
//
// Three algorithms are selectable through [Config.Algorithm]: argon2i (default),
// argon2id and bcrypt. Argon2 hashes are encoded in PHC string format:
//
//	$argon2i$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// bcrypt hashes use the standard modular crypt format ($2a$/$2b$/$2y$).
//
// [Hasher.Verify] dispatches on the stored hash, so a store can switch its
// configured algorithm without invalidating existing users. [Hasher.NeedsUpgrade]
// reports hashes produced with another algorithm or weaker parameters.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Enforce password policy (length, complexity, reuse).
//   - Log plaintext passwords or hash parameters at runtime.
package password
