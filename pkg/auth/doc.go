// Package auth authenticates HTTP requests and attaches the resulting
// user to the request context.
//
// Authentication resolves a bearer token to an AuthUser by verifying the
// token and loading the user's profile document. Authorization is a pure
// check over the AuthUser's role and active flag; handlers that need it
// use the RequireRoles middleware, which fails closed.
package auth
