// Package errors provides structured error handling with error codes.
//
// Every service returns *errors.Error values with a typed ErrorCode, an
// operator-facing message, optional structured details, and the wrapped
// underlying error. Handlers map codes to HTTP status codes with
// MapErrorCodeToHTTPStatus.
//
// Creating errors:
//
//	err := errors.New(errors.ErrCodeUserNotFound, "user not found")
//	err := errors.Wrapf(dbErr, errors.ErrCodeUpstreamUnavailable, "profile store get %s", id)
//	err := errors.DuplicateEmail()
//
// Inspecting errors:
//
//	if errors.IsCode(err, errors.ErrCodeDuplicateEmail) { ... }
//	status := errors.GetCode(err)
//
// Authentication failures use deliberately generic messages so responses do
// not reveal whether an email exists or which credential was wrong.
// Validation failures are specific and name the offending field.
package errors
