package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/usercore/apiserver/internal/services"
	"github.com/usercore/apiserver/internal/validation"
	"github.com/usercore/apiserver/types"
	"go.uber.org/zap"
)

// UserHandler serves the administrative user endpoints.
type UserHandler struct {
	responder
	users *services.UserService
}

func NewUserHandler(users *services.UserService, log *zap.Logger) *UserHandler {
	return &UserHandler{responder: newResponder(log), users: users}
}

// UserRouter registers the user management routes. Every route requires an
// identity; all but the team listing are admin only.
func UserRouter(r chi.Router, users *services.UserService, authenticate func(http.Handler) http.Handler, log *zap.Logger) {
	h := NewUserHandler(users, log)

	r.Use(authenticate)
	r.Group(func(r chi.Router) {
		r.Use(RequireRoles(types.RoleAdmin))
		r.With(validation.Query[ListUsersQuery](h.fail)).Get("/", h.List)
		r.With(validation.Body[CreateUserRequest](h.fail)).Post("/", h.Create)
		r.Get("/stats", h.Stats)
	})
	r.With(
		RequireRoles(types.RoleAdmin, types.RoleManager),
		validation.Params[TeamParams](h.fail),
	).Get("/team/{id}", h.Team)
}

// List returns a filtered page of users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	q, _ := validation.From[ListUsersQuery](r.Context())

	page, err := h.users.List(r.Context(), q.filter())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "", page)
}

// Create adds a user with admin controlled role, status and team.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, _ := validation.From[CreateUserRequest](r.Context())

	in, err := req.NewUser()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.users.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, "User created successfully", userData{User: user})
}

// Stats returns user counts by role and activity.
func (h *UserHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "", map[string]types.UserStats{"stats": stats})
}

// Team lists the direct reports of the user in the path.
func (h *UserHandler) Team(w http.ResponseWriter, r *http.Request) {
	p, _ := validation.From[TeamParams](r.Context())

	id, err := services.ParseObjectID("id", p.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.users.Team(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "", view)
}
