package account

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"

	"github.com/solobay/ident/pkg/auth"
	idmerrors "github.com/solobay/ident/pkg/errors"
	"github.com/solobay/ident/pkg/password"
	"github.com/solobay/ident/pkg/token"
)

// AuthHandle exposes the authentication endpoints: registration, login,
// the federated login callback, token refresh, logout, and the password
// reset and change flows.
type AuthHandle struct {
	accounts  *Service
	passwords *password.Service
	tokens    *token.Service
	auth      *auth.Service
}

// NewAuthHandle creates an auth handle
func NewAuthHandle(accounts *Service, passwords *password.Service, tokens *token.Service, authService *auth.Service) AuthHandle {
	return AuthHandle{
		accounts:  accounts,
		passwords: passwords,
		tokens:    tokens,
		auth:      authService,
	}
}

// Routes registers the authentication routes. Everything here is reachable
// without a session except /update-password, which runs behind the
// verifier middleware.
func (h AuthHandle) Routes(r chi.Router) {
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/google", h.google)
	r.Post("/refresh-token", h.refreshToken)
	r.Post("/logout", h.logout)
	r.Post("/forgot-password", h.forgotPassword)
	r.Post("/reset-password", h.resetPassword)

	r.With(auth.Verifier(h.auth)).Post("/update-password", h.updatePassword)
}

// authResponse is the wire shape of a successful authentication
type authResponse struct {
	User userResponse `json:"user"`
	AuthTokens
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (h AuthHandle) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, idmerrors.New(idmerrors.ErrCodeValidationFailed, "invalid request body"))
		return
	}
	if req.Email == "" {
		renderError(w, r, idmerrors.MissingRequired("email"))
		return
	}
	if req.Password == "" {
		renderError(w, r, idmerrors.MissingRequired("password"))
		return
	}

	result, err := h.accounts.Register(r.Context(), RegisterParams{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, authResponse{
		User:       toUserResponse(result.Document),
		AuthTokens: result.Tokens,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h AuthHandle) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, idmerrors.New(idmerrors.ErrCodeValidationFailed, "invalid request body"))
		return
	}
	if req.Email == "" || req.Password == "" {
		// Same response as a wrong password so probes learn nothing.
		renderError(w, r, idmerrors.InvalidCredentials())
		return
	}

	result, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, authResponse{
		User:       toUserResponse(result.Document),
		AuthTokens: result.Tokens,
	})
}

// googleRequest carries the identity asserted by the upstream federation
// flow. The assertion itself is terminated before this service; only the
// verified claims arrive here.
type googleRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

func (h AuthHandle) google(w http.ResponseWriter, r *http.Request) {
	var req googleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, idmerrors.New(idmerrors.ErrCodeValidationFailed, "invalid request body"))
		return
	}
	if req.Email == "" {
		renderError(w, r, idmerrors.MissingRequired("email"))
		return
	}

	result, err := h.accounts.FederatedLogin(r.Context(), req.Email, req.DisplayName)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, authResponse{
		User:       toUserResponse(result.Document),
		AuthTokens: result.Tokens,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h AuthHandle) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, idmerrors.New(idmerrors.ErrCodeValidationFailed, "invalid request body"))
		return
	}
	if req.RefreshToken == "" {
		renderError(w, r, idmerrors.MissingRequired("refresh_token"))
		return
	}

	access, expiresAt, err := h.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, AuthTokens{AccessToken: access, ExpiresAt: expiresAt})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// logout revokes every outstanding token for the caller by bumping the
// revocation epoch. The caller can present the refresh token in the body
// or a session token as bearer. An absent or dead token still gets a 200;
// logging out twice is not an error.
func (h AuthHandle) logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	rawToken := req.RefreshToken
	if rawToken == "" {
		rawToken = jwtauth.TokenFromHeader(r)
	}
	if rawToken == "" {
		rawToken = jwtauth.TokenFromCookie(r)
	}

	if rawToken != "" {
		if claims, err := h.tokens.Verify(r.Context(), rawToken, token.PurposeSession); err == nil {
			if err := h.tokens.RevokeAll(r.Context(), claims.Subject); err != nil {
				renderError(w, r, err)
				return
			}
		}
	}

	render.JSON(w, r, map[string]string{"message": "logged out"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h AuthHandle) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, idmerrors.New(idmerrors.ErrCodeValidationFailed, "invalid request body"))
		return
	}
	if req.Email == "" {
		renderError(w, r, idmerrors.MissingRequired("email"))
		return
	}

	if err := h.passwords.RequestReset(r.Context(), req.Email); err != nil {
		renderError(w, r, err)
		return
	}

	// Identical response whether or not the email is registered.
	render.JSON(w, r, map[string]string{"message": "if the email is registered, a reset link has been sent"})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h AuthHandle) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, idmerrors.New(idmerrors.ErrCodeValidationFailed, "invalid request body"))
		return
	}
	if req.Token == "" {
		renderError(w, r, idmerrors.MissingRequired("token"))
		return
	}
	if req.NewPassword == "" {
		renderError(w, r, idmerrors.MissingRequired("new_password"))
		return
	}

	if err := h.passwords.ConsumeReset(r.Context(), req.Token, req.NewPassword); err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]string{"message": "password has been reset"})
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h AuthHandle) updatePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.FromContext(r.Context())
	if !ok {
		renderError(w, r, idmerrors.Unauthorized("authentication required"))
		return
	}

	var req updatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, idmerrors.New(idmerrors.ErrCodeValidationFailed, "invalid request body"))
		return
	}
	if req.CurrentPassword == "" {
		renderError(w, r, idmerrors.MissingRequired("current_password"))
		return
	}
	if req.NewPassword == "" {
		renderError(w, r, idmerrors.MissingRequired("new_password"))
		return
	}

	if err := h.passwords.ChangePassword(r.Context(), user.IdentityID, req.CurrentPassword, req.NewPassword); err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]string{"message": "password updated"})
}
