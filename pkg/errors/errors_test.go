package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrCodeNotFound, "user not found")
	assert.Equal(t, "[NOT_FOUND] user not found", err.Error())

	wrapped := Wrap(fmt.Errorf("connection refused"), ErrCodeUpstreamUnavailable, "identity provider unavailable")
	assert.Equal(t, "[UPSTREAM_UNAVAILABLE] identity provider unavailable: connection refused", wrapped.Error())
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("row not found")
	err := Wrap(inner, ErrCodeNotFound, "lookup failed")

	assert.True(t, errors.Is(err, inner))
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "never happens"))
}

func TestIsCodeAndGetCode(t *testing.T) {
	err := DuplicateEmail()

	assert.True(t, IsCode(err, ErrCodeDuplicateEmail))
	assert.False(t, IsCode(err, ErrCodeNotFound))
	assert.Equal(t, ErrCodeDuplicateEmail, GetCode(err))

	// Codes survive another layer of wrapping.
	outer := fmt.Errorf("handler: %w", err)
	assert.True(t, IsCode(outer, ErrCodeDuplicateEmail))

	assert.Equal(t, ErrCodeInternal, GetCode(errors.New("plain error")))
	assert.False(t, IsCode(nil, ErrCodeInternal))
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		code   ErrorCode
		status int
	}{
		{ErrCodeValidationFailed, http.StatusBadRequest},
		{ErrCodeMissingRequired, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeInvalidCredentials, http.StatusUnauthorized},
		{ErrCodeTokenInvalid, http.StatusUnauthorized},
		{ErrCodeTokenExpired, http.StatusUnauthorized},
		{ErrCodeTokenRevoked, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeUserNotFound, http.StatusNotFound},
		{ErrCodeAlreadyExists, http.StatusConflict},
		{ErrCodeDuplicateEmail, http.StatusConflict},
		{ErrCodeUpstreamUnavailable, http.StatusBadGateway},
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodePartialWrite, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.status, MapErrorCodeToHTTPStatus(tc.code), "code %s", tc.code)
	}
}

func TestPartialWriteDetails(t *testing.T) {
	err := PartialWrite("id-123", "profile_put", errors.New("write timeout"))

	require.Equal(t, ErrCodePartialWrite, err.Code)
	assert.Equal(t, "id-123", err.Details["identity_id"])
	assert.Equal(t, "profile_put", err.Details["failed_step"])
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatusCode())
}

func TestInvalidCredentialsIsGeneric(t *testing.T) {
	// The message must not hint at which credential failed.
	msg := InvalidCredentials().Message
	assert.NotContains(t, msg, "not found")
	assert.NotContains(t, msg, "wrong password")
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeValidationFailed, "bad input").WithDetail("field", "email")
	assert.Equal(t, "email", GetDetails(err)["field"])
	assert.Nil(t, GetDetails(errors.New("plain")))
}
