package account

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"

	"github.com/solobay/ident/pkg/auth"
	idmerrors "github.com/solobay/ident/pkg/errors"
	"github.com/solobay/ident/pkg/profile"
)

// Handle exposes user management over HTTP
type Handle struct {
	service *Service
}

// NewHandle creates a handle backed by the given account service
func NewHandle(service *Service) Handle {
	return Handle{service: service}
}

// Routes registers the user management routes. The caller is expected to
// have installed the auth verifier middleware on the surrounding router.
func (h Handle) Routes(r chi.Router) {
	r.Get("/me", h.getMe)

	r.With(auth.RequireRoles(profile.RoleAdmin)).Group(func(r chi.Router) {
		r.Get("/", h.listUsers)
		r.Post("/", h.createUser)
		r.Delete("/{userID}", h.deleteUser)
		r.Put("/{userID}/role", h.changeRole)
		r.Put("/{userID}/active", h.setActive)
	})

	r.Get("/{userID}", h.getUser)
	r.Put("/{userID}", h.updateUser)
	r.Put("/{userID}/profile", h.updateProfile)
}

// userResponse is the wire shape of a user. The password hash never leaves
// the service; everything else on the document is copied through.
type userResponse struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	DisplayName string            `json:"display_name,omitempty"`
	Role        string            `json:"role"`
	IsActive    bool              `json:"is_active"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	LastLogin   *time.Time        `json:"last_login,omitempty"`
	Profile     map[string]string `json:"profile,omitempty"`
}

func toUserResponse(doc profile.Document) userResponse {
	var resp userResponse
	if err := copier.Copy(&resp, &doc); err != nil {
		slog.Error("Failed to copy user document", "err", err)
	}
	return resp
}

func (h Handle) listUsers(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListUsers(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}

	resp := make([]userResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, toUserResponse(doc))
	}
	render.JSON(w, r, resp)
}

type createUserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (h Handle) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
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

	result, err := h.service.Register(r.Context(), RegisterParams{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toUserResponse(result.Document))
}

func (h Handle) getMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.FromContext(r.Context())
	if !ok {
		renderError(w, r, idmerrors.Unauthorized("authentication required"))
		return
	}

	doc, err := h.service.GetUser(r.Context(), user.IdentityID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, toUserResponse(doc))
}

func (h Handle) getUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if !selfOrAdmin(r, id) {
		renderError(w, r, idmerrors.Forbidden("insufficient permissions"))
		return
	}

	doc, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, toUserResponse(doc))
}

type updateUserRequest struct {
	Email       *string `json:"email"`
	DisplayName *string `json:"display_name"`
}

func (h Handle) updateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if !selfOrAdmin(r, id) {
		renderError(w, r, idmerrors.Forbidden("insufficient permissions"))
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, idmerrors.New(idmerrors.ErrCodeValidationFailed, "invalid request body"))
		return
	}

	doc, err := h.service.UpdateUser(r.Context(), id, UpdateUserParams{
		Email:       req.Email,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, toUserResponse(doc))
}

func (h Handle) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"message": "user deleted"})
}

func (h Handle) updateProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if !selfOrAdmin(r, id) {
		renderError(w, r, idmerrors.Forbidden("insufficient permissions"))
		return
	}

	var attrs map[string]string
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		renderError(w, r, idmerrors.New(idmerrors.ErrCodeValidationFailed, "invalid request body"))
		return
	}

	doc, err := h.service.UpdateProfile(r.Context(), id, attrs)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, toUserResponse(doc))
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (h Handle) changeRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")

	var req changeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, idmerrors.New(idmerrors.ErrCodeValidationFailed, "invalid request body"))
		return
	}
	if req.Role == "" {
		renderError(w, r, idmerrors.MissingRequired("role"))
		return
	}

	doc, err := h.service.ChangeRole(r.Context(), id, req.Role)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, toUserResponse(doc))
}

type setActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

func (h Handle) setActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")

	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, idmerrors.New(idmerrors.ErrCodeValidationFailed, "invalid request body"))
		return
	}
	if req.IsActive == nil {
		renderError(w, r, idmerrors.MissingRequired("is_active"))
		return
	}

	doc, err := h.service.SetActive(r.Context(), id, *req.IsActive)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, toUserResponse(doc))
}

func selfOrAdmin(r *http.Request, userID string) bool {
	user, ok := auth.FromContext(r.Context())
	if !ok {
		return false
	}
	return user.IdentityID == userID || user.Role == profile.RoleAdmin
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var e *idmerrors.Error
	if !errors.As(err, &e) {
		e = idmerrors.Internal("internal error")
	}
	render.Status(r, e.HTTPStatusCode())
	render.JSON(w, r, map[string]interface{}{
		"code":    e.Code,
		"message": e.Message,
	})
}
