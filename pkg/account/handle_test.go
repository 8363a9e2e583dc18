package account

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solobay/ident/pkg/auth"
	"github.com/solobay/ident/pkg/idp"
	"github.com/solobay/ident/pkg/notification"
	"github.com/solobay/ident/pkg/password"
	"github.com/solobay/ident/pkg/profile"
	"github.com/solobay/ident/pkg/token"
)

type apiFixture struct {
	router   *chi.Mux
	idp      *idp.InMemoryClient
	profiles *profile.InMemoryStore
	tokens   *token.Service
	notifier *notification.MockNotifier
}

// newAPIFixture wires the full HTTP surface the way the server entrypoint
// does, on in-memory backends.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	idpClient := idp.NewInMemoryClient()
	profiles := profile.NewInMemoryStore()
	tokens := token.NewService(idpClient, "test-secret-0123456789", "ident-test", "ident-test")
	notifier := &notification.MockNotifier{}
	manager := notification.NewManager(notifier, "http://localhost:3000")

	passwords := password.NewService(idpClient, profiles, tokens,
		password.WithNotificationManager(manager),
	)
	accounts := NewService(idpClient, profiles, tokens,
		WithNotificationManager(manager),
	)
	authService := auth.NewService(tokens, profiles)

	r := chi.NewRouter()
	authHandle := NewAuthHandle(accounts, passwords, tokens, authService)
	r.Route("/auth", authHandle.Routes)

	userHandle := NewHandle(accounts)
	r.Route("/users", func(r chi.Router) {
		r.Use(auth.Verifier(authService))
		userHandle.Routes(r)
	})

	return &apiFixture{
		router:   r,
		idp:      idpClient,
		profiles: profiles,
		tokens:   tokens,
		notifier: notifier,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeAuth(t *testing.T, rec *httptest.ResponseRecorder) (userResponse, string, string) {
	t.Helper()
	var resp struct {
		User         userResponse `json:"user"`
		Token        string       `json:"token"`
		RefreshToken string       `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.User, resp.Token, resp.RefreshToken
}

func (f *apiFixture) registerSession(t *testing.T, email string) (userResponse, string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":        email,
		"password":     "secret123",
		"display_name": "Test User",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user, tok, _ := decodeAuth(t, rec)
	return user, tok
}

// adminSession registers a user and promotes it straight in the store
func (f *apiFixture) adminSession(t *testing.T) (userResponse, string) {
	t.Helper()
	user, _ := f.registerSession(t, "admin@example.com")
	role := profile.RoleAdmin
	_, err := f.profiles.Patch(context.Background(), user.ID, profile.Patch{Role: &role})
	require.NoError(t, err)

	// Re-login so nothing is cached from the pre-promotion session.
	rec := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "admin@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	adminUser, tok, _ := decodeAuth(t, rec)
	return adminUser, tok
}

func TestRegisterEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":        "alice@example.com",
		"password":     "secret123",
		"display_name": "Alice",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	user, tok, refresh := decodeAuth(t, rec)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEmpty(t, tok)
	assert.NotEmpty(t, refresh)
	// The hash never appears on the wire.
	assert.NotContains(t, rec.Body.String(), "password_hash")
}

func TestRegisterEndpointValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{"password": "secret123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "alice@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterEndpointDuplicate(t *testing.T) {
	f := newAPIFixture(t)
	f.registerSession(t, "alice@example.com")

	rec := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "alice@example.com",
		"password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.registerSession(t, "alice@example.com")

	rec := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": "secret123",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGoogleEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/google", "", map[string]string{
		"email":        "alice@example.com",
		"display_name": "Alice",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	user, tok, _ := decodeAuth(t, rec)
	assert.NotEmpty(t, user.ID)
	assert.NotEmpty(t, tok)
}

func TestRefreshTokenEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "alice@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	_, _, refresh := decodeAuth(t, rec)

	rec = f.do(t, http.MethodPost, "/auth/refresh-token", "", map[string]string{
		"refresh_token": refresh,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	rec = f.do(t, http.MethodPost, "/auth/refresh-token", "", map[string]string{
		"refresh_token": "garbage",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutEndpointRevokes(t *testing.T) {
	f := newAPIFixture(t)
	_, tok := f.registerSession(t, "alice@example.com")

	rec := f.do(t, http.MethodPost, "/auth/logout", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The session died with the logout.
	rec = f.do(t, http.MethodGet, "/users/me", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logging out without a token is still a 200.
	rec = f.do(t, http.MethodPost, "/auth/logout", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutEndpointAcceptsRefreshToken(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "alice@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	_, tok, refresh := decodeAuth(t, rec)

	rec = f.do(t, http.MethodPost, "/auth/logout", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, rec.Code)

	// The revocation killed the session token too.
	rec = f.do(t, http.MethodGet, "/users/me", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestForgotPasswordEndpointNeverLeaks(t *testing.T) {
	f := newAPIFixture(t)
	f.registerSession(t, "alice@example.com")

	known := f.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "alice@example.com"})
	unknown := f.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "nobody@example.com"})

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
}

func TestResetPasswordEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.registerSession(t, "alice@example.com")

	rec := f.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "alice@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotEmpty(t, f.notifier.SentNotifications)
	resetToken := f.notifier.SentNotifications[len(f.notifier.SentNotifications)-1].Data["Token"]
	require.NotEmpty(t, resetToken)

	rec = f.do(t, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"token":        resetToken,
		"new_password": "newsecret456",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "newsecret456",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Second consumption of the same token fails.
	rec = f.do(t, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"token":        resetToken,
		"new_password": "evennewer789",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdatePasswordEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	_, tok := f.registerSession(t, "alice@example.com")

	// Wrong current password: 401, the session survives.
	rec := f.do(t, http.MethodPost, "/auth/update-password", tok, map[string]string{
		"current_password": "wrong",
		"new_password":     "newsecret456",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.do(t, http.MethodGet, "/users/me", tok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Correct current password: 200, and the session it ran under dies.
	rec = f.do(t, http.MethodPost, "/auth/update-password", tok, map[string]string{
		"current_password": "secret123",
		"new_password":     "newsecret456",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodGet, "/users/me", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// No bearer at all: the verifier turns it away.
	rec = f.do(t, http.MethodPost, "/auth/update-password", "", map[string]string{
		"current_password": "newsecret456",
		"new_password":     "other12345",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetMeEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	user, tok := f.registerSession(t, "alice@example.com")

	rec := f.do(t, http.MethodGet, "/users/me", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "alice@example.com", got.Email)
}

func TestUserRoutesRequireAuth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/users/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListUsersIsAdminOnly(t *testing.T) {
	f := newAPIFixture(t)
	_, userTok := f.registerSession(t, "alice@example.com")
	_, adminTok := f.adminSession(t)

	rec := f.do(t, http.MethodGet, "/users/", userTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/users/", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var users []userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 2)
}

func TestAdminCreateUserEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	_, adminTok := f.adminSession(t)

	rec := f.do(t, http.MethodPost, "/users/", adminTok, map[string]string{
		"email":        "bob@example.com",
		"password":     "secret123",
		"display_name": "Bob",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The created user exists in both stores.
	_, err := f.idp.GetByEmail(context.Background(), "bob@example.com")
	assert.NoError(t, err)
	_, err = f.profiles.FindByEmail(context.Background(), "bob@example.com")
	assert.NoError(t, err)
}

func TestGetUserSelfOrAdmin(t *testing.T) {
	f := newAPIFixture(t)
	alice, aliceTok := f.registerSession(t, "alice@example.com")
	bob, bobTok := f.registerSession(t, "bob@example.com")
	_, adminTok := f.adminSession(t)

	// Self: allowed.
	rec := f.do(t, http.MethodGet, "/users/"+alice.ID, aliceTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Another user: denied.
	rec = f.do(t, http.MethodGet, "/users/"+bob.ID, aliceTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Admin: allowed.
	rec = f.do(t, http.MethodGet, "/users/"+bob.ID, adminTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Missing id as admin: 404.
	rec = f.do(t, http.MethodGet, "/users/missing-id", adminTok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_ = bobTok
}

func TestUpdateUserEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	alice, aliceTok := f.registerSession(t, "alice@example.com")

	rec := f.do(t, http.MethodPut, "/users/"+alice.ID, aliceTok, map[string]string{
		"display_name": "Alice Cooper",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var got userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Alice Cooper", got.DisplayName)
}

func TestDeleteUserIsAdminOnly(t *testing.T) {
	f := newAPIFixture(t)
	alice, aliceTok := f.registerSession(t, "alice@example.com")
	_, adminTok := f.adminSession(t)

	rec := f.do(t, http.MethodDelete, "/users/"+alice.ID, aliceTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodDelete, "/users/"+alice.ID, adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/users/"+alice.ID, adminTok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateProfileEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	alice, aliceTok := f.registerSession(t, "alice@example.com")

	rec := f.do(t, http.MethodPut, "/users/"+alice.ID+"/profile", aliceTok, map[string]string{
		"team": "platform",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var got userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "platform", got.Profile["team"])
}

func TestChangeRoleEndpointIsAdminOnly(t *testing.T) {
	f := newAPIFixture(t)
	alice, aliceTok := f.registerSession(t, "alice@example.com")
	_, adminTok := f.adminSession(t)

	// A user cannot promote themselves.
	rec := f.do(t, http.MethodPut, "/users/"+alice.ID+"/role", aliceTok, map[string]string{"role": profile.RoleAdmin})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, "/users/"+alice.ID+"/role", adminTok, map[string]string{"role": profile.RoleAdmin})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPut, "/users/"+alice.ID+"/role", adminTok, map[string]string{"role": "superuser"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetActiveEndpointLocksOut(t *testing.T) {
	f := newAPIFixture(t)
	alice, aliceTok := f.registerSession(t, "alice@example.com")
	_, adminTok := f.adminSession(t)

	rec := f.do(t, http.MethodPut, "/users/"+alice.ID+"/active", adminTok, map[string]bool{"is_active": false})
	require.Equal(t, http.StatusOK, rec.Code)

	// A deactivated account cannot pass the role gate anymore.
	rec = f.do(t, http.MethodGet, "/users/"+alice.ID, aliceTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code) // plain self read still works

	rec = f.do(t, http.MethodPut, "/users/"+alice.ID+"/active", adminTok, map[string]bool{"is_active": true})
	assert.Equal(t, http.StatusOK, rec.Code)
}
