package idp

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors returned by Client implementations. Callers wrap transport
// failures separately; these three are the only business-level outcomes.
var (
	ErrAccountNotFound    = errors.New("identity provider: account not found")
	ErrDuplicateEmail     = errors.New("identity provider: email already in use")
	ErrInvalidCredentials = errors.New("identity provider: invalid credentials")
)

// Identity is the canonical account record held by the identity provider.
// The password verifier itself is provider-internal and never leaves it.
type Identity struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	DisplayName     string `json:"display_name,omitempty"`
	Disabled        bool   `json:"disabled,omitempty"`
	RevocationEpoch int64  `json:"revocation_epoch"`
}

// CreateAccountParams holds the fields needed to create an account
type CreateAccountParams struct {
	Email       string
	Password    string
	DisplayName string
}

// UpdateAccountParams holds the identity-relevant fields that can be
// propagated to the provider. Nil fields are left unchanged.
type UpdateAccountParams struct {
	Email       *string
	DisplayName *string
}

// Client abstracts the external identity provider admin API.
// Implementations must be safe for concurrent use.
type Client interface {
	// CreateAccount creates an account and returns the stored identity.
	// The provider's uniqueness constraint on email is authoritative;
	// a duplicate returns ErrDuplicateEmail.
	CreateAccount(ctx context.Context, params CreateAccountParams) (Identity, error)

	// GetAccount retrieves an account by its opaque id
	GetAccount(ctx context.Context, id string) (Identity, error)

	// GetByEmail retrieves an account by its normalized email
	GetByEmail(ctx context.Context, email string) (Identity, error)

	// VerifyPassword checks a plaintext password against the provider's
	// verifier. Returns ErrInvalidCredentials on mismatch or disabled account.
	VerifyPassword(ctx context.Context, id, password string) error

	// UpdateAccount propagates identity-relevant field changes
	UpdateAccount(ctx context.Context, id string, params UpdateAccountParams) error

	// UpdatePassword replaces the provider-side password verifier
	UpdatePassword(ctx context.Context, id, newPassword string) error

	// BumpRevocationEpoch increments the account's revocation epoch and
	// returns the new value. The epoch only ever increases.
	BumpRevocationEpoch(ctx context.Context, id string) (int64, error)

	// DeleteAccount removes the account
	DeleteAccount(ctx context.Context, id string) error
}

// NormalizeEmail lowercases and trims an email address so lookups and
// uniqueness checks are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
