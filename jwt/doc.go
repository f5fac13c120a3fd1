// Package jwt issues and verifies the bearer tokens used by the token
// persistence backend. A bearer token only carries a session id; the signed
// session payload itself lives server-side, so revoking the payload revokes
// the token.
package jwt
