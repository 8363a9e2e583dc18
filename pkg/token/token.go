package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token purposes. A token minted for one purpose never verifies for another.
const (
	PurposeSession = "session"
	PurposeReset   = "password_reset"
)

// Default token expiry durations
const (
	DefaultSessionExpiry = 15 * time.Minute
	DefaultRefreshExpiry = 24 * time.Hour
	DefaultResetExpiry   = 30 * time.Minute
)

// Claims is the signed assertion carried by every token: the identity it
// binds, the purpose it was minted for, and the revocation epoch at issue
// time. Validity is derived from the signature and an epoch comparison, not
// from a lookup table; tokens are never persisted.
type Claims struct {
	Purpose string `json:"purpose,omitempty"`
	Epoch   int64  `json:"epoch"`
	jwt.RegisteredClaims
}

// IdentityID returns the identity the token is bound to
func (c *Claims) IdentityID() string {
	return c.Subject
}
