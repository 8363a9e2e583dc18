package password

import (
	"regexp"

	idmerrors "github.com/solobay/ident/pkg/errors"
)

// Policy defines the requirements for password complexity
type Policy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
}

// DefaultPolicy returns the policy applied to new passwords
func DefaultPolicy() Policy {
	return Policy{
		MinLength:        8,
		RequireLowercase: true,
		RequireDigit:     true,
	}
}

var (
	upperRe = regexp.MustCompile(`[A-Z]`)
	lowerRe = regexp.MustCompile(`[a-z]`)
	digitRe = regexp.MustCompile(`[0-9]`)
)

// Check verifies that a password meets the complexity requirements.
// Failures are validation errors and name the unmet requirement.
func (p Policy) Check(password string) error {
	if len(password) < p.MinLength {
		return idmerrors.Newf(idmerrors.ErrCodeValidationFailed, "password must be at least %d characters long", p.MinLength)
	}
	if p.RequireUppercase && !upperRe.MatchString(password) {
		return idmerrors.New(idmerrors.ErrCodeValidationFailed, "password must contain at least one uppercase letter")
	}
	if p.RequireLowercase && !lowerRe.MatchString(password) {
		return idmerrors.New(idmerrors.ErrCodeValidationFailed, "password must contain at least one lowercase letter")
	}
	if p.RequireDigit && !digitRe.MatchString(password) {
		return idmerrors.New(idmerrors.ErrCodeValidationFailed, "password must contain at least one digit")
	}
	return nil
}
