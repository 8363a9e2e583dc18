package token

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	idmerrors "github.com/solobay/ident/pkg/errors"
	"github.com/solobay/ident/pkg/idp"
)

// Service issues, verifies, and revokes tokens. Verification is pure except
// for the revocation-epoch read against the identity provider.
type Service struct {
	idpClient idp.Client
	secret    []byte
	issuer    string
	audience  string

	sessionExpiry time.Duration
	refreshExpiry time.Duration
	resetExpiry   time.Duration
}

// Option is a function that configures a Service
type Option func(*Service)

// WithSessionExpiry sets the session token expiry duration
func WithSessionExpiry(expiry time.Duration) Option {
	return func(s *Service) {
		s.sessionExpiry = expiry
	}
}

// WithRefreshExpiry sets the refresh token expiry duration
func WithRefreshExpiry(expiry time.Duration) Option {
	return func(s *Service) {
		s.refreshExpiry = expiry
	}
}

// WithResetExpiry sets the password-reset token expiry duration
func WithResetExpiry(expiry time.Duration) Option {
	return func(s *Service) {
		s.resetExpiry = expiry
	}
}

// NewService creates a token service signing with the given HMAC secret
func NewService(idpClient idp.Client, secret, issuer, audience string, opts ...Option) *Service {
	s := &Service{
		idpClient:     idpClient,
		secret:        []byte(secret),
		issuer:        issuer,
		audience:      audience,
		sessionExpiry: DefaultSessionExpiry,
		refreshExpiry: DefaultRefreshExpiry,
		resetExpiry:   DefaultResetExpiry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueSessionToken mints a short-lived session token for the identity
func (s *Service) IssueSessionToken(identity idp.Identity) (string, time.Time, error) {
	return s.issue(identity, PurposeSession, s.sessionExpiry)
}

// IssueRefreshToken mints a long-lived session-purpose token used to obtain
// fresh session tokens without re-authenticating
func (s *Service) IssueRefreshToken(identity idp.Identity) (string, time.Time, error) {
	return s.issue(identity, PurposeSession, s.refreshExpiry)
}

// IssueResetToken mints a short-lived password-reset token
func (s *Service) IssueResetToken(identity idp.Identity) (string, time.Time, error) {
	return s.issue(identity, PurposeReset, s.resetExpiry)
}

func (s *Service) issue(identity idp.Identity, purpose string, expiry time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	claims := Claims{
		Purpose: purpose,
		Epoch:   identity.RevocationEpoch,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-1 * time.Minute)),
			Issuer:    s.issuer,
			Subject:   identity.ID,
			ID:        uuid.New().String(),
			Audience:  jwt.ClaimStrings{s.audience},
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		slog.Error("Failed to sign token", "purpose", purpose, "err", err)
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks a raw token: signature, purpose, expiry, then revocation
// epoch against the identity provider. Each failing step short-circuits
// with a coarse error kind only; callers never learn which claim failed
// beyond invalid / expired / revoked.
func (s *Service) Verify(ctx context.Context, raw, expectedPurpose string) (*Claims, error) {
	// Time-based claims are checked by hand below so that purpose is tested
	// before expiry; an expired token of the wrong kind is still the wrong
	// kind, not an expired one.
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, idmerrors.Wrap(err, idmerrors.ErrCodeTokenInvalid, "invalid token")
	}

	if claims.Issuer != s.issuer || !audienceContains(claims.Audience, s.audience) {
		return nil, idmerrors.New(idmerrors.ErrCodeTokenInvalid, "invalid token")
	}

	if claims.Purpose != expectedPurpose {
		return nil, idmerrors.New(idmerrors.ErrCodeTokenInvalid, "invalid token")
	}

	now := time.Now().UTC()
	if claims.ExpiresAt == nil || now.After(claims.ExpiresAt.Time) {
		return nil, idmerrors.New(idmerrors.ErrCodeTokenExpired, "token expired")
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return nil, idmerrors.New(idmerrors.ErrCodeTokenInvalid, "invalid token")
	}

	identity, err := s.idpClient.GetAccount(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, idp.ErrAccountNotFound) {
			return nil, idmerrors.New(idmerrors.ErrCodeTokenInvalid, "invalid token")
		}
		return nil, idmerrors.Upstream("identity provider", err)
	}

	// Tokens issued before the current epoch are dead, regardless of expiry.
	if claims.Epoch < identity.RevocationEpoch {
		return nil, idmerrors.New(idmerrors.ErrCodeTokenRevoked, "token revoked")
	}

	return claims, nil
}

func audienceContains(audience jwt.ClaimStrings, want string) bool {
	for _, aud := range audience {
		if aud == want {
			return true
		}
	}
	return false
}

// Refresh verifies a session-purpose token and mints a fresh session token
// for the same identity at the current revocation epoch
func (s *Service) Refresh(ctx context.Context, raw string) (string, time.Time, error) {
	claims, err := s.Verify(ctx, raw, PurposeSession)
	if err != nil {
		return "", time.Time{}, err
	}

	identity, err := s.idpClient.GetAccount(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, idp.ErrAccountNotFound) {
			return "", time.Time{}, idmerrors.New(idmerrors.ErrCodeTokenInvalid, "invalid token")
		}
		return "", time.Time{}, idmerrors.Upstream("identity provider", err)
	}
	return s.IssueSessionToken(identity)
}

// RevokeAll bumps the identity's revocation epoch, invalidating every token
// issued before this call regardless of expiry
func (s *Service) RevokeAll(ctx context.Context, identityID string) error {
	epoch, err := s.idpClient.BumpRevocationEpoch(ctx, identityID)
	if err != nil {
		if errors.Is(err, idp.ErrAccountNotFound) {
			return idmerrors.NotFound("identity", identityID)
		}
		return idmerrors.Upstream("identity provider", err)
	}
	slog.Info("Revoked all tokens", "identity_id", identityID, "epoch", epoch)
	return nil
}
