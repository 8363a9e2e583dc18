// Package idp abstracts the external identity provider.
//
// The provider is the source of truth for login: it owns the password
// verifier, enforces email uniqueness on account creation, and tracks the
// per-account revocation epoch that invalidates previously issued tokens.
//
// Two implementations are provided: RESTClient talks to a provider admin
// API over JSON/HTTP, and InMemoryClient is a full in-process stand-in used
// for development and tests.
package idp
