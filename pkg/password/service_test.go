package password

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	idmerrors "github.com/solobay/ident/pkg/errors"
	"github.com/solobay/ident/pkg/idp"
	"github.com/solobay/ident/pkg/notification"
	"github.com/solobay/ident/pkg/profile"
	"github.com/solobay/ident/pkg/token"
)

type passwordFixture struct {
	service  *Service
	idp      *idp.InMemoryClient
	profiles *profile.InMemoryStore
	tokens   *token.Service
	notifier *notification.MockNotifier
	identity idp.Identity
}

func newPasswordFixture(t *testing.T) *passwordFixture {
	t.Helper()
	ctx := context.Background()

	idpClient := idp.NewInMemoryClient()
	profiles := profile.NewInMemoryStore()
	tokens := token.NewService(idpClient, "test-secret-0123456789", "ident-test", "ident-test")
	notifier := &notification.MockNotifier{}
	manager := notification.NewManager(notifier, "http://localhost:3000")

	identity, err := idpClient.CreateAccount(ctx, idp.CreateAccountParams{
		Email:    "alice@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	require.NoError(t, profiles.Put(ctx, identity.ID, profile.Document{
		ID:       identity.ID,
		Email:    identity.Email,
		Role:     profile.RoleUser,
		IsActive: true,
	}))

	service := NewService(idpClient, profiles, tokens,
		WithNotificationManager(manager),
	)

	return &passwordFixture{
		service:  service,
		idp:      idpClient,
		profiles: profiles,
		tokens:   tokens,
		notifier: notifier,
		identity: identity,
	}
}

// sentResetToken digs the raw reset token out of the captured notice
func (f *passwordFixture) sentResetToken(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.notifier.SentNotifications)
	last := f.notifier.SentNotifications[len(f.notifier.SentNotifications)-1]
	tok := last.Data["Token"]
	require.NotEmpty(t, tok)
	return tok
}

func TestRequestResetSendsNotice(t *testing.T) {
	f := newPasswordFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.RequestReset(ctx, "alice@example.com"))

	require.Len(t, f.notifier.SentNotifications, 1)
	sent := f.notifier.SentNotifications[0]
	assert.Equal(t, "alice@example.com", sent.To)
	assert.Contains(t, sent.Data["Link"], "http://localhost:3000/reset-password?token=")
	assert.NotEmpty(t, sent.Data["Token"])
}

func TestRequestResetUnknownEmailStaysQuiet(t *testing.T) {
	f := newPasswordFixture(t)

	// Same outcome as a known email, and nothing gets sent.
	require.NoError(t, f.service.RequestReset(context.Background(), "nobody@example.com"))
	assert.Empty(t, f.notifier.SentNotifications)
}

func TestResetFlow(t *testing.T) {
	f := newPasswordFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.RequestReset(ctx, "alice@example.com"))
	resetToken := f.sentResetToken(t)

	require.NoError(t, f.service.ConsumeReset(ctx, resetToken, "newsecret456"))

	// The provider verifier changed.
	assert.Error(t, f.idp.VerifyPassword(ctx, f.identity.ID, "secret123"))
	assert.NoError(t, f.idp.VerifyPassword(ctx, f.identity.ID, "newsecret456"))

	// The audit copy followed.
	doc, err := f.profiles.Get(ctx, f.identity.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.PasswordHash)
	ok, err := DefaultHasher().Verify("newsecret456", doc.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResetTokenIsSingleUse(t *testing.T) {
	f := newPasswordFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.RequestReset(ctx, "alice@example.com"))
	resetToken := f.sentResetToken(t)

	require.NoError(t, f.service.ConsumeReset(ctx, resetToken, "newsecret456"))

	// The final revocation bumped the epoch, which kills the consumed token.
	err := f.service.ConsumeReset(ctx, resetToken, "another789")
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeTokenRevoked))
}

func TestResetRevokesSessions(t *testing.T) {
	f := newPasswordFixture(t)
	ctx := context.Background()

	session, _, err := f.tokens.IssueSessionToken(f.identity)
	require.NoError(t, err)

	require.NoError(t, f.service.RequestReset(ctx, "alice@example.com"))
	require.NoError(t, f.service.ConsumeReset(ctx, f.sentResetToken(t), "newsecret456"))

	_, err = f.tokens.Verify(ctx, session, token.PurposeSession)
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeTokenRevoked))
}

func TestConsumeResetRejectsWeakPassword(t *testing.T) {
	f := newPasswordFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.RequestReset(ctx, "alice@example.com"))
	err := f.service.ConsumeReset(ctx, f.sentResetToken(t), "weak")
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeValidationFailed))

	// The rejected attempt consumed nothing.
	assert.NoError(t, f.idp.VerifyPassword(ctx, f.identity.ID, "secret123"))
}

func TestConsumeResetRejectsSessionToken(t *testing.T) {
	f := newPasswordFixture(t)
	ctx := context.Background()

	session, _, err := f.tokens.IssueSessionToken(f.identity)
	require.NoError(t, err)

	err = f.service.ConsumeReset(ctx, session, "newsecret456")
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeTokenInvalid))
}

func TestChangePassword(t *testing.T) {
	f := newPasswordFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.ChangePassword(ctx, f.identity.ID, "secret123", "newsecret456"))

	assert.NoError(t, f.idp.VerifyPassword(ctx, f.identity.ID, "newsecret456"))
	assert.Error(t, f.idp.VerifyPassword(ctx, f.identity.ID, "secret123"))
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	f := newPasswordFixture(t)
	ctx := context.Background()

	before, err := f.profiles.Get(ctx, f.identity.ID)
	require.NoError(t, err)

	err = f.service.ChangePassword(ctx, f.identity.ID, "wrongcurrent", "newsecret456")
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeUnauthorized))

	// Nothing moved in either store.
	assert.NoError(t, f.idp.VerifyPassword(ctx, f.identity.ID, "secret123"))
	after, err := f.profiles.Get(ctx, f.identity.ID)
	require.NoError(t, err)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	f := newPasswordFixture(t)
	ctx := context.Background()

	session, _, err := f.tokens.IssueSessionToken(f.identity)
	require.NoError(t, err)

	require.NoError(t, f.service.ChangePassword(ctx, f.identity.ID, "secret123", "newsecret456"))

	_, err = f.tokens.Verify(ctx, session, token.PurposeSession)
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeTokenRevoked))
}
