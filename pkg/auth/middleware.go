package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"

	idmerrors "github.com/solobay/ident/pkg/errors"
)

// Verifier returns middleware that authenticates the request's bearer token
// and stores the resolved AuthUser in the request context. Tokens are read
// from the Authorization header first, then the jwt cookie.
func Verifier(service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken := jwtauth.TokenFromHeader(r)
			if rawToken == "" {
				rawToken = jwtauth.TokenFromCookie(r)
			}
			if rawToken == "" {
				writeAuthError(w, r, idmerrors.Unauthorized("missing bearer token"))
				return
			}

			user, err := service.Authenticate(r.Context(), rawToken)
			if err != nil {
				writeAuthError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), user)))
		})
	}
}

// RequireRoles returns middleware gating the request on the caller's role.
// It must run after Verifier. Inactive accounts are rejected regardless of
// role; a role outside the allowed set is a 403, not a 401.
func RequireRoles(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := FromContext(r.Context())
			if !ok {
				writeAuthError(w, r, idmerrors.Unauthorized("unauthorized"))
				return
			}
			if !user.IsActive {
				writeAuthError(w, r, idmerrors.Forbidden("account is deactivated"))
				return
			}

			role := user.Role
			allowed := false
			for _, candidate := range allowedRoles {
				if role == candidate {
					allowed = true
					break
				}
			}
			if !allowed {
				slog.Info("Role check failed", "user", user, "allowed_roles", allowedRoles)
				writeAuthError(w, r, idmerrors.Forbidden("insufficient permissions"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	code := idmerrors.GetCode(err)
	message := "unauthorized"
	var e *idmerrors.Error
	if errors.As(err, &e) {
		message = e.Message
	}

	render.Status(r, idmerrors.MapErrorCodeToHTTPStatus(code))
	render.JSON(w, r, map[string]interface{}{
		"code":    code,
		"message": message,
	})
}
