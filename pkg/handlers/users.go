package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/apperrors"
	"github.com/kgcorpus/tagging-console/pkg/audit"
	"github.com/kgcorpus/tagging-console/pkg/auth"
	"github.com/kgcorpus/tagging-console/pkg/backend"
	"github.com/kgcorpus/tagging-console/pkg/models"
	"github.com/kgcorpus/tagging-console/pkg/notify"
)

const (
	usersPath     = "/users"
	usersPageSize = 50
)

var (
	errUsernameRequired = errors.New("username is required")
	errPasswordTooShort = errors.New("password must be at least 8 characters")
)

type userForm struct {
	Username string
	Role     string
}

// usersPage is the data of users.html.
type usersPage struct {
	Form       userForm
	Roles      []string
	Err        string
	Users      []models.User
	SelfID     int
	Page       int
	TotalPages int
}

// UsersHandler serves account administration.
type UsersHandler struct {
	pages
	client  *backend.Client
	auditor *audit.SecurityAuditor
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(client *backend.Client, auditor *audit.SecurityAuditor, store *auth.Store, render *Renderer, logger *zap.Logger) *UsersHandler {
	return &UsersHandler{
		pages:   pages{store: store, render: render, logger: logger.Named("users")},
		client:  client,
		auditor: auditor,
	}
}

// RegisterRoutes registers the users handler's routes on the given mux.
func (h *UsersHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET "+usersPath, authMiddleware.RequireAdmin(h.List))
	mux.HandleFunc("POST "+usersPath, authMiddleware.RequireAdmin(h.Create))
	mux.HandleFunc("POST "+usersPath+"/{id}/delete", authMiddleware.RequireAdmin(h.Delete))
}

// List handles GET /users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	h.renderList(w, r, http.StatusOK, userForm{Role: models.RoleEditor})
}

func (h *UsersHandler) renderList(w http.ResponseWriter, r *http.Request, status int, form userForm, extra ...notify.Notice) {
	page := queryInt(r, "page", 1)
	data := usersPage{
		Form:   form,
		Roles:  models.ValidRoles,
		SelfID: identity(r).User.ID,
		Page:   page,
	}

	up, err := h.client.ListUsers(r.Context(), credential(r), page, usersPageSize)
	if err != nil {
		if h.signOutIfExpired(w, r, "load users", err, usersPath) {
			return
		}
		h.logger.Warn("Failed to list users", zap.Error(err))
		data.Err = notify.FromError("load users", err).Message
		if status == http.StatusOK {
			status = http.StatusBadGateway
		}
	} else {
		data.Users = up.Items
		data.TotalPages = 1
		if up.Meta != nil {
			data.TotalPages = up.Meta.TotalPages
		}
	}
	h.render.Render(w, r, status, "users.html", data, extra...)
}

// Create handles POST /users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	req := models.CreateUserRequest{
		Username: strings.TrimSpace(r.FormValue("username")),
		Password: r.FormValue("password"),
		Role:     r.FormValue("role"),
	}
	form := userForm{Username: req.Username, Role: req.Role}

	if err := validateNewUser(req); err != nil {
		h.renderList(w, r, http.StatusUnprocessableEntity, form, notify.FromError("create the user", err))
		return
	}

	u, err := h.client.CreateUser(r.Context(), credential(r), req)
	if err != nil {
		if h.signOutIfExpired(w, r, "create the user", err, usersPath) {
			return
		}
		h.logger.Warn("Failed to create user", zap.String("username", req.Username), zap.Error(err))
		h.renderList(w, r, http.StatusBadGateway, form, notify.FromError("create the user", err))
		return
	}

	h.logger.Info("User created",
		zap.String("username", u.Username),
		zap.String("role", u.Role),
		zap.String("by", identity(r).User.Username))
	h.auditor.LogUserCreated(r.Context(), u.Username, u.Role, r.RemoteAddr)
	h.notice(w, r, notify.Success("User created", fmt.Sprintf("%s can now sign in as %s.", u.Username, u.Role)))
	h.redirect(w, r, usersPath)
}

// Delete handles POST /users/{id}/delete.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseUserID(r)
	if !ok {
		h.fail(w, r, "delete the user", fmt.Errorf("%w: invalid user id", apperrors.ErrValidation), usersPath)
		return
	}
	if id == identity(r).User.ID {
		h.fail(w, r, "delete the user", apperrors.ErrSelfDelete, usersPath)
		return
	}

	if err := h.client.DeleteUser(r.Context(), credential(r), id); err != nil {
		h.logger.Warn("Failed to delete user", zap.Int("user_id", id), zap.Error(err))
		h.fail(w, r, "delete the user", err, usersPath)
		return
	}

	h.logger.Info("User deleted", zap.Int("user_id", id), zap.String("by", identity(r).User.Username))
	h.auditor.LogUserDeleted(r.Context(), id, r.RemoteAddr)
	h.notice(w, r, notify.Success("User deleted", ""))
	h.redirect(w, r, usersPath)
}

func validateNewUser(req models.CreateUserRequest) error {
	switch {
	case req.Username == "":
		return errUsernameRequired
	case len(req.Password) < 8:
		return errPasswordTooShort
	case !models.IsValidRole(req.Role):
		return fmt.Errorf("%w: choose one of %s", apperrors.ErrInvalidRole, strings.Join(models.ValidRoles, ", "))
	}
	return nil
}
