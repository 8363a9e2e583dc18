// Package password implements credential hashing and the password reset and
// change flows.
//
// The identity provider owns the verifier that authenticates logins; the
// profile document carries an independent local hash for schema and audit
// parity. Both are updated together on every successful password mutation,
// followed by a revocation-epoch bump that invalidates all outstanding
// tokens, including the reset token that initiated the change.
package password
