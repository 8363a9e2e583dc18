package password

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	idmerrors "github.com/solobay/ident/pkg/errors"
	"github.com/solobay/ident/pkg/idp"
	"github.com/solobay/ident/pkg/notification"
	"github.com/solobay/ident/pkg/profile"
	"github.com/solobay/ident/pkg/token"
)

// Service implements the credential reset and change flows. Every password
// mutation updates both the identity provider (the real verifier) and the
// profile document's audit copy, then revokes all outstanding tokens.
type Service struct {
	idpClient           idp.Client
	profiles            profile.Store
	tokens              *token.Service
	hasher              Hasher
	notificationManager *notification.Manager
	policy              Policy
}

// ServiceOption is a function that configures a Service
type ServiceOption func(*Service)

// WithHasher sets the password hasher used for the profile audit copy
func WithHasher(hasher Hasher) ServiceOption {
	return func(s *Service) {
		s.hasher = hasher
	}
}

// WithPolicy sets the password complexity policy
func WithPolicy(policy Policy) ServiceOption {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithNotificationManager sets the manager used to deliver reset links
func WithNotificationManager(nm *notification.Manager) ServiceOption {
	return func(s *Service) {
		s.notificationManager = nm
	}
}

// NewService creates a password service
func NewService(idpClient idp.Client, profiles profile.Store, tokens *token.Service, opts ...ServiceOption) *Service {
	s := &Service{
		idpClient: idpClient,
		profiles:  profiles,
		tokens:    tokens,
		hasher:    DefaultHasher(),
		policy:    DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the active password complexity policy
func (s *Service) Policy() Policy {
	return s.policy
}

// RequestReset issues a reset token for the account registered under email
// and hands it to the notification channel. It reports success for unknown
// emails as well, so responses cannot be used to enumerate accounts; the
// raw token is never returned to the caller.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	identity, err := s.idpClient.GetByEmail(ctx, idp.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, idp.ErrAccountNotFound) {
			slog.Info("Password reset requested for unknown email")
			return nil
		}
		return idmerrors.Upstream("identity provider", err)
	}

	resetToken, _, err := s.tokens.IssueResetToken(identity)
	if err != nil {
		return idmerrors.Wrap(err, idmerrors.ErrCodeInternal, "failed to issue reset token")
	}

	if s.notificationManager == nil {
		slog.Warn("No notification manager configured, dropping reset token", "identity_id", identity.ID)
		return nil
	}

	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.notificationManager.BaseUrl, resetToken)
	err = s.notificationManager.Send(notification.PasswordResetNotice, notification.NotificationData{
		To:   identity.Email,
		Data: map[string]string{
			"Link":  resetLink,
			"Token": resetToken,
		},
	})
	if err != nil {
		// Delivery is best effort; the caller still gets a generic success.
		slog.Error("Failed to send password reset notice", "identity_id", identity.ID, "err", err)
	}
	return nil
}

// ConsumeReset verifies a reset token and applies the new password to both
// stores, then revokes all outstanding tokens. Revocation runs only after
// both writes succeed, and it is what makes the reset token single-use.
func (s *Service) ConsumeReset(ctx context.Context, rawToken, newPassword string) error {
	if err := s.policy.Check(newPassword); err != nil {
		return err
	}

	claims, err := s.tokens.Verify(ctx, rawToken, token.PurposeReset)
	if err != nil {
		return err
	}

	return s.applyPasswordChange(ctx, claims.IdentityID(), newPassword)
}

// ChangePassword verifies the caller's current password against the
// identity provider before applying the new one. A failed verification
// leaves both stores untouched.
func (s *Service) ChangePassword(ctx context.Context, identityID, currentPassword, newPassword string) error {
	if err := s.policy.Check(newPassword); err != nil {
		return err
	}

	err := s.idpClient.VerifyPassword(ctx, identityID, currentPassword)
	if err != nil {
		if errors.Is(err, idp.ErrInvalidCredentials) || errors.Is(err, idp.ErrAccountNotFound) {
			return idmerrors.Unauthorized("current password is incorrect")
		}
		return idmerrors.Upstream("identity provider", err)
	}

	return s.applyPasswordChange(ctx, identityID, newPassword)
}

// applyPasswordChange performs the dual update and final revocation.
// Order matters: provider first, profile audit copy second, revoke last.
// Revoking before the writes complete would kill live sessions without
// finishing the change.
func (s *Service) applyPasswordChange(ctx context.Context, identityID, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return idmerrors.Wrap(err, idmerrors.ErrCodeInternal, "failed to hash password")
	}

	if err := s.idpClient.UpdatePassword(ctx, identityID, newPassword); err != nil {
		if errors.Is(err, idp.ErrAccountNotFound) {
			return idmerrors.NotFound("identity", identityID)
		}
		return idmerrors.Upstream("identity provider", err)
	}

	_, err = s.profiles.Patch(ctx, identityID, profile.Patch{PasswordHash: &hash})
	if err != nil {
		// The provider verifier changed but the audit copy did not.
		slog.Error("Password changed at provider but profile update failed",
			"identity_id", identityID, "err", err)
		return idmerrors.PartialWrite(identityID, "profile_password_hash", err)
	}

	if err := s.tokens.RevokeAll(ctx, identityID); err != nil {
		slog.Error("Password changed but token revocation failed", "identity_id", identityID, "err", err)
		return err
	}

	slog.Info("Password changed", "identity_id", identityID)
	return nil
}
