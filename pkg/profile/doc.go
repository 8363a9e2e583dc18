// Package profile owns the application-side user record: the profile
// document keyed by identity id, with role, active flag, timestamps, and a
// bounded mapping of extra attributes.
//
// Every identity has at most one document with the same id. A missing
// document for an existing identity is a detected inconsistency and is
// surfaced as such by the callers, never papered over.
package profile
