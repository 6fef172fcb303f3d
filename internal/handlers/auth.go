package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/usercore/apiserver/internal/apperr"
	"github.com/usercore/apiserver/internal/services"
	"github.com/usercore/apiserver/internal/validation"
	"github.com/usercore/apiserver/types"
	"go.uber.org/zap"
)

// AuthHandler serves the self-service account endpoints.
type AuthHandler struct {
	responder
	accounts *services.AccountService
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(accounts *services.AccountService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{responder: newResponder(log), accounts: accounts}
}

// AuthRouter registers auth routes on the given router. Routes that need an
// identity authenticate before validating their body.
func AuthRouter(r chi.Router, accounts *services.AccountService, authenticate func(http.Handler) http.Handler, log *zap.Logger) {
	h := NewAuthHandler(accounts, log)

	r.With(validation.Body[RegisterRequest](h.fail)).Post("/register", h.Register)
	r.With(validation.Body[LoginRequest](h.fail)).Post("/login", h.Login)
	r.Post("/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Get("/profile", h.Profile)
		r.With(validation.Body[UpdateProfileRequest](h.fail)).Put("/profile", h.UpdateProfile)
		r.With(validation.Body[ChangePasswordRequest](h.fail)).Put("/change-password", h.ChangePassword)
		r.With(validation.Body[RefreshRequest](h.fail)).Post("/refresh", h.Refresh)
	})
}

type authData struct {
	User   types.UserResponse `json:"user"`
	Tokens types.Tokens       `json:"tokens"`
}

type userData struct {
	User types.UserResponse `json:"user"`
}

func newAuthData(res services.AuthResult) authData {
	return authData{User: types.NewUserResponse(res.User, nil), Tokens: res.Tokens}
}

// Register creates a new account and returns it with a token pair.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, _ := validation.From[RegisterRequest](r.Context())

	res, err := h.accounts.Register(r.Context(), req.registration())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, "User registered successfully", newAuthData(res))
}

// Login verifies credentials and returns a token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, _ := validation.From[LoginRequest](r.Context())

	res, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "Login successful", newAuthData(res))
}

// Refresh exchanges a refresh token for a new access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	req, _ := validation.From[RefreshRequest](r.Context())

	res, err := h.accounts.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "Token updated successfully", newAuthData(res))
}

// Profile returns the authenticated user.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		h.fail(w, r, apperr.Unauthorized(msgAuthRequired))
		return
	}

	profile, err := h.accounts.Profile(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "", userData{User: profile})
}

// UpdateProfile changes the supplied fields of the authenticated user.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		h.fail(w, r, apperr.Unauthorized(msgAuthRequired))
		return
	}
	req, _ := validation.From[UpdateProfileRequest](r.Context())

	patch, err := req.patch()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	profile, err := h.accounts.UpdateProfile(r.Context(), user.ID, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "Profile updated successfully", userData{User: profile})
}

// ChangePassword replaces the authenticated user's password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		h.fail(w, r, apperr.Unauthorized(msgAuthRequired))
		return
	}
	req, _ := validation.From[ChangePasswordRequest](r.Context())

	if err := h.accounts.ChangePassword(r.Context(), user, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "password has been updated successfully", nil)
}

// Logout does nothing server side; tokens stay valid until they expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.ok(w, http.StatusOK, "Logout successful", nil)
}
