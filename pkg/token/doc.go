// Package token implements the session and password-reset token lifecycle.
//
// Tokens are signed JWTs binding an identity id, a purpose, and the
// revocation epoch at issue time. They are never stored: a token is valid
// when its signature checks out, its purpose matches, it has not expired,
// and its embedded epoch is not older than the identity's current
// revocation epoch. Bumping the epoch revokes everything issued before the
// bump in one step.
package token
