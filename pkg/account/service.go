package account

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	idmerrors "github.com/solobay/ident/pkg/errors"
	"github.com/solobay/ident/pkg/idp"
	"github.com/solobay/ident/pkg/notification"
	"github.com/solobay/ident/pkg/password"
	"github.com/solobay/ident/pkg/profile"
	"github.com/solobay/ident/pkg/token"
)

// Service coordinates the dual writes that keep the identity provider and
// the profile store consistent. Creation writes the hard-to-undo identity
// first and the profile document second; deletion runs in the reverse,
// safety-favoring order so a failure can orphan an identity but never a
// profile. There is no distributed transaction underneath: partial failures
// are compensated once, then surfaced as explicit partial-write errors.
type Service struct {
	idpClient           idp.Client
	profiles            profile.Store
	tokens              *token.Service
	hasher              password.Hasher
	policy              password.Policy
	notificationManager *notification.Manager
	defaultRole         string
}

// ServiceOption is a function that configures a Service
type ServiceOption func(*Service)

// WithDefaultRole sets the role assigned to newly registered users
func WithDefaultRole(role string) ServiceOption {
	return func(s *Service) {
		s.defaultRole = role
	}
}

// WithHasher sets the password hasher used for the profile audit copy
func WithHasher(hasher password.Hasher) ServiceOption {
	return func(s *Service) {
		s.hasher = hasher
	}
}

// WithPolicy sets the password complexity policy applied at registration
func WithPolicy(policy password.Policy) ServiceOption {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithNotificationManager sets the manager used for welcome notices
func WithNotificationManager(nm *notification.Manager) ServiceOption {
	return func(s *Service) {
		s.notificationManager = nm
	}
}

// NewService creates an account service
func NewService(idpClient idp.Client, profiles profile.Store, tokens *token.Service, opts ...ServiceOption) *Service {
	s := &Service{
		idpClient:   idpClient,
		profiles:    profiles,
		tokens:      tokens,
		hasher:      password.DefaultHasher(),
		policy:      password.DefaultPolicy(),
		defaultRole: profile.RoleUser,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterParams holds the fields of a registration request
type RegisterParams struct {
	Email       string
	Password    string
	DisplayName string
}

// AuthTokens bundles the session and refresh tokens minted for a login
type AuthTokens struct {
	AccessToken  string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

// RegisterResult is the outcome of a successful registration
type RegisterResult struct {
	Identity idp.Identity
	Document profile.Document
	Tokens   AuthTokens
}

// LoginResult is the outcome of a successful login
type LoginResult struct {
	Document profile.Document
	Tokens   AuthTokens
}

// UpdateUserParams names the top-level user fields that can be updated
type UpdateUserParams struct {
	Email       *string
	DisplayName *string
}

// Register creates an identity at the provider and a matching profile
// document, then mints session tokens.
//
// The profile-store email pre-check is best effort and may race; the
// provider's uniqueness constraint on account creation is the arbiter, and
// a duplicate there maps to the same outcome. If the profile write fails
// after the identity exists, one compensating delete is attempted and the
// operation reports a partial write so the caller can retry registration.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*RegisterResult, error) {
	email := idp.NormalizeEmail(params.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := s.policy.Check(params.Password); err != nil {
		return nil, err
	}

	_, err := s.profiles.FindByEmail(ctx, email)
	if err == nil {
		return nil, idmerrors.DuplicateEmail()
	}
	if !errors.Is(err, profile.ErrNotFound) {
		return nil, idmerrors.Upstream("profile store", err)
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, idmerrors.Wrap(err, idmerrors.ErrCodeInternal, "failed to hash password")
	}

	identity, err := s.idpClient.CreateAccount(ctx, idp.CreateAccountParams{
		Email:       email,
		Password:    params.Password,
		DisplayName: params.DisplayName,
	})
	if err != nil {
		if errors.Is(err, idp.ErrDuplicateEmail) {
			return nil, idmerrors.DuplicateEmail()
		}
		return nil, idmerrors.Upstream("identity provider", err)
	}

	doc := profile.Document{
		ID:           identity.ID,
		Email:        email,
		PasswordHash: hash,
		DisplayName:  params.DisplayName,
		Role:         s.defaultRole,
		IsActive:     true,
	}
	if err := s.profiles.Put(ctx, identity.ID, doc); err != nil {
		// The identity exists but the document does not. One compensating
		// delete, then surface the inconsistency; never leave it silent.
		slog.Error("Profile write failed after identity creation, compensating",
			"identity_id", identity.ID, "err", err)
		if delErr := s.idpClient.DeleteAccount(ctx, identity.ID); delErr != nil {
			slog.Error("Compensating identity delete failed, orphaned identity remains",
				"identity_id", identity.ID, "err", delErr)
		}
		return nil, idmerrors.PartialWrite(identity.ID, "profile_put", err)
	}

	stored, err := s.profiles.Get(ctx, identity.ID)
	if err == nil {
		doc = stored
	}

	tokens, err := s.mintTokens(identity)
	if err != nil {
		return nil, err
	}

	s.sendWelcome(identity.Email, doc.DisplayName)

	slog.Info("User registered", "identity_id", identity.ID)
	return &RegisterResult{Identity: identity, Document: doc, Tokens: tokens}, nil
}

// sendWelcome delivers the welcome notice. Delivery failures never fail
// the registration.
func (s *Service) sendWelcome(email, displayName string) {
	if s.notificationManager == nil {
		return
	}
	err := s.notificationManager.Send(notification.WelcomeNotice, notification.NotificationData{
		To:   email,
		Data: map[string]string{"DisplayName": displayName},
	})
	if err != nil {
		slog.Error("Failed to send welcome notice", "err", err)
	}
}

// Login verifies credentials against the identity provider and returns the
// profile document with fresh tokens. Credential failures are generic by
// design; a missing profile document for a verified identity is surfaced
// as the dual-store inconsistency it is.
func (s *Service) Login(ctx context.Context, email, plainPassword string) (*LoginResult, error) {
	identity, err := s.idpClient.GetByEmail(ctx, idp.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, idp.ErrAccountNotFound) {
			return nil, idmerrors.InvalidCredentials()
		}
		return nil, idmerrors.Upstream("identity provider", err)
	}

	if err := s.idpClient.VerifyPassword(ctx, identity.ID, plainPassword); err != nil {
		if errors.Is(err, idp.ErrInvalidCredentials) || errors.Is(err, idp.ErrAccountNotFound) {
			return nil, idmerrors.InvalidCredentials()
		}
		return nil, idmerrors.Upstream("identity provider", err)
	}

	doc, err := s.profiles.Get(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			slog.Error("Identity has no profile document", "identity_id", identity.ID)
			return nil, idmerrors.New(idmerrors.ErrCodeUserNotFound, "user not found")
		}
		return nil, idmerrors.Upstream("profile store", err)
	}

	now := time.Now().UTC()
	if updated, err := s.profiles.Patch(ctx, identity.ID, profile.Patch{LastLogin: &now}); err != nil {
		slog.Error("Failed to stamp last login", "identity_id", identity.ID, "err", err)
	} else {
		doc = updated
	}

	tokens, err := s.mintTokens(identity)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Document: doc, Tokens: tokens}, nil
}

// FederatedLogin signs in a user asserted by an external federation flow:
// look up the identity by email, create it if absent, and issue session
// tokens. Accounts created this way get a random provider password and an
// empty local hash; their credentials live with the federated provider.
func (s *Service) FederatedLogin(ctx context.Context, email, displayName string) (*LoginResult, error) {
	email = idp.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	identity, err := s.idpClient.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, idp.ErrAccountNotFound) {
			return nil, idmerrors.Upstream("identity provider", err)
		}
		return s.createFederated(ctx, email, displayName)
	}

	doc, err := s.profiles.Get(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, idmerrors.New(idmerrors.ErrCodeUserNotFound, "user not found")
		}
		return nil, idmerrors.Upstream("profile store", err)
	}

	tokens, err := s.mintTokens(identity)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Document: doc, Tokens: tokens}, nil
}

func (s *Service) createFederated(ctx context.Context, email, displayName string) (*LoginResult, error) {
	identity, err := s.idpClient.CreateAccount(ctx, idp.CreateAccountParams{
		Email:       email,
		Password:    uuid.New().String(), // never used; federation owns the credential
		DisplayName: displayName,
	})
	if err != nil {
		if errors.Is(err, idp.ErrDuplicateEmail) {
			// Lost the race with a concurrent create for the same email.
			return nil, idmerrors.DuplicateEmail()
		}
		return nil, idmerrors.Upstream("identity provider", err)
	}

	doc := profile.Document{
		ID:          identity.ID,
		Email:       email,
		DisplayName: displayName,
		Role:        s.defaultRole,
		IsActive:    true,
	}
	if err := s.profiles.Put(ctx, identity.ID, doc); err != nil {
		slog.Error("Profile write failed after federated identity creation, compensating",
			"identity_id", identity.ID, "err", err)
		if delErr := s.idpClient.DeleteAccount(ctx, identity.ID); delErr != nil {
			slog.Error("Compensating identity delete failed, orphaned identity remains",
				"identity_id", identity.ID, "err", delErr)
		}
		return nil, idmerrors.PartialWrite(identity.ID, "profile_put", err)
	}

	if stored, err := s.profiles.Get(ctx, identity.ID); err == nil {
		doc = stored
	}

	tokens, err := s.mintTokens(identity)
	if err != nil {
		return nil, err
	}

	s.sendWelcome(email, displayName)

	slog.Info("Federated user created", "identity_id", identity.ID)
	return &LoginResult{Document: doc, Tokens: tokens}, nil
}

// GetUser retrieves a user's profile document
func (s *Service) GetUser(ctx context.Context, id string) (profile.Document, error) {
	doc, err := s.profiles.Get(ctx, id)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return profile.Document{}, idmerrors.NotFound("user", id)
		}
		return profile.Document{}, idmerrors.Upstream("profile store", err)
	}
	return doc, nil
}

// ListUsers returns all profile documents
func (s *Service) ListUsers(ctx context.Context) ([]profile.Document, error) {
	docs, err := s.profiles.List(ctx)
	if err != nil {
		return nil, idmerrors.Upstream("profile store", err)
	}
	return docs, nil
}

// UpdateUser applies top-level field changes. The profile store is
// authoritative for application fields and is written first; only then are
// identity-relevant fields propagated to the provider. A propagation
// failure is reported as a partial write, not rolled back.
func (s *Service) UpdateUser(ctx context.Context, id string, params UpdateUserParams) (profile.Document, error) {
	patch := profile.Patch{DisplayName: params.DisplayName}
	if params.Email != nil {
		email := idp.NormalizeEmail(*params.Email)
		if err := validateEmail(email); err != nil {
			return profile.Document{}, err
		}
		patch.Email = &email
	}

	doc, err := s.profiles.Patch(ctx, id, patch)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return profile.Document{}, idmerrors.NotFound("user", id)
		}
		return profile.Document{}, idmerrors.Upstream("profile store", err)
	}

	if patch.Email != nil || params.DisplayName != nil {
		err := s.idpClient.UpdateAccount(ctx, id, idp.UpdateAccountParams{
			Email:       patch.Email,
			DisplayName: params.DisplayName,
		})
		if err != nil {
			slog.Error("Profile updated but identity propagation failed",
				"identity_id", id, "err", err)
			return doc, idmerrors.PartialWrite(id, "idp_update", err)
		}
	}

	return doc, nil
}

// DeleteUser removes the user from both stores, profile document first.
// A failed provider delete leaves only a dangling identity account, which
// is harmless and can be garbage-collected out of band.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.profiles.Delete(ctx, id); err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return idmerrors.NotFound("user", id)
		}
		return idmerrors.Upstream("profile store", err)
	}

	if err := s.idpClient.DeleteAccount(ctx, id); err != nil {
		if errors.Is(err, idp.ErrAccountNotFound) {
			slog.Warn("Identity already absent during delete", "identity_id", id)
			return nil
		}
		slog.Error("Profile deleted but identity delete failed, dangling identity remains",
			"identity_id", id, "err", err)
		return idmerrors.PartialWrite(id, "idp_delete", err)
	}

	slog.Info("User deleted", "identity_id", id)
	return nil
}

// UpdateProfile merges extra attributes into the user's open profile
// mapping. The bounds apply to the mapping after the merge, not just the
// incoming patch, so repeated calls cannot grow the stored mapping past
// the cap.
func (s *Service) UpdateProfile(ctx context.Context, id string, attrs map[string]string) (profile.Document, error) {
	if err := profile.ValidateExtra(attrs); err != nil {
		return profile.Document{}, idmerrors.Wrap(err, idmerrors.ErrCodeValidationFailed, "invalid profile attributes")
	}

	current, err := s.profiles.Get(ctx, id)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return profile.Document{}, idmerrors.NotFound("user", id)
		}
		return profile.Document{}, idmerrors.Upstream("profile store", err)
	}

	merged := make(map[string]string, len(current.Profile)+len(attrs))
	for k, v := range current.Profile {
		merged[k] = v
	}
	for k, v := range attrs {
		merged[k] = v
	}
	if err := profile.ValidateExtra(merged); err != nil {
		return profile.Document{}, idmerrors.Wrap(err, idmerrors.ErrCodeValidationFailed, "invalid profile attributes")
	}

	doc, err := s.profiles.Patch(ctx, id, profile.Patch{Profile: attrs})
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return profile.Document{}, idmerrors.NotFound("user", id)
		}
		return profile.Document{}, idmerrors.Upstream("profile store", err)
	}
	return doc, nil
}

// ChangeRole assigns a new role to the user
func (s *Service) ChangeRole(ctx context.Context, id, role string) (profile.Document, error) {
	if !profile.ValidRole(role) {
		return profile.Document{}, idmerrors.Newf(idmerrors.ErrCodeValidationFailed, "unknown role: %s", role)
	}

	doc, err := s.profiles.Patch(ctx, id, profile.Patch{Role: &role})
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return profile.Document{}, idmerrors.NotFound("user", id)
		}
		return profile.Document{}, idmerrors.Upstream("profile store", err)
	}
	return doc, nil
}

// SetActive flips the user's active flag
func (s *Service) SetActive(ctx context.Context, id string, isActive bool) (profile.Document, error) {
	doc, err := s.profiles.Patch(ctx, id, profile.Patch{IsActive: &isActive})
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return profile.Document{}, idmerrors.NotFound("user", id)
		}
		return profile.Document{}, idmerrors.Upstream("profile store", err)
	}
	return doc, nil
}

func (s *Service) mintTokens(identity idp.Identity) (AuthTokens, error) {
	access, expiresAt, err := s.tokens.IssueSessionToken(identity)
	if err != nil {
		return AuthTokens{}, idmerrors.Wrap(err, idmerrors.ErrCodeInternal, "failed to issue session token")
	}
	refresh, _, err := s.tokens.IssueRefreshToken(identity)
	if err != nil {
		return AuthTokens{}, idmerrors.Wrap(err, idmerrors.ErrCodeInternal, "failed to issue refresh token")
	}
	return AuthTokens{AccessToken: access, ExpiresAt: expiresAt, RefreshToken: refresh}, nil
}

func validateEmail(email string) error {
	if email == "" {
		return idmerrors.MissingRequired("email")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return idmerrors.New(idmerrors.ErrCodeValidationFailed, "invalid email address")
	}
	return nil
}
