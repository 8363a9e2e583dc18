// Package account implements user lifecycle operations that span the
// identity provider and the profile document store.
//
// Every mutating operation here is a dual write. Creation writes the
// identity first and the profile second, with one compensating delete if
// the second write fails. Deletion removes the profile first so a failure
// can only leave a dangling identity, never a profile without credentials.
// Inconsistencies that survive compensation are reported as partial-write
// errors carrying the identity id and the step that failed.
package account
