package auth

import (
	"context"
	"errors"
	"log/slog"

	idmerrors "github.com/solobay/ident/pkg/errors"
	"github.com/solobay/ident/pkg/profile"
	"github.com/solobay/ident/pkg/token"
)

// AuthUser is the authorization context resolved from a verified token:
// who the caller is, what role they hold, and whether the account is active.
type AuthUser struct {
	IdentityID  string `json:"identity_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"`
	IsActive    bool   `json:"is_active"`
}

func (u AuthUser) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("identity_id", u.IdentityID),
		slog.String("role", u.Role),
	)
}

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "auth context value " + k.name
}

var authUserKey = &contextKey{"AuthUser"}

// NewContext returns a context carrying the auth user
func NewContext(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, authUserKey, user)
}

// FromContext extracts the auth user stored by the Verifier middleware
func FromContext(ctx context.Context) (*AuthUser, bool) {
	user, ok := ctx.Value(authUserKey).(*AuthUser)
	return user, ok
}

// Service resolves bearer tokens into authorization contexts
type Service struct {
	tokens   *token.Service
	profiles profile.Store
}

// NewService creates an auth service
func NewService(tokens *token.Service, profiles profile.Store) *Service {
	return &Service{
		tokens:   tokens,
		profiles: profiles,
	}
}

// Authenticate verifies a session token and loads the caller's profile
// document. A valid token whose identity has no document is the dual-store
// inconsistency surfaced at read time and maps to a not-found outcome.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*AuthUser, error) {
	claims, err := s.tokens.Verify(ctx, rawToken, token.PurposeSession)
	if err != nil {
		return nil, err
	}

	doc, err := s.profiles.Get(ctx, claims.IdentityID())
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			slog.Error("Identity has no profile document", "identity_id", claims.IdentityID())
			return nil, idmerrors.New(idmerrors.ErrCodeUserNotFound, "user not found")
		}
		return nil, idmerrors.Upstream("profile store", err)
	}

	role := doc.Role
	if role == "" {
		role = profile.RoleUser
	}

	return &AuthUser{
		IdentityID:  doc.ID,
		Email:       doc.Email,
		DisplayName: doc.DisplayName,
		Role:        role,
		IsActive:    doc.IsActive,
	}, nil
}

// Authorize reports whether the user's role is in the allowed set.
// It fails closed: an empty allowed set or an unknown role denies access.
func (s *Service) Authorize(user *AuthUser, allowedRoles ...string) bool {
	if user == nil {
		return false
	}
	role := user.Role
	if role == "" {
		role = profile.RoleUser
	}
	for _, allowed := range allowedRoles {
		if role == allowed {
			return true
		}
	}
	return false
}
