package handlers

import (
	"strings"

	"github.com/usercore/apiserver/internal/services"
	"github.com/usercore/apiserver/types"
)

var (
	usernameMessages = map[string]string{
		"username.required": "Username is required",
		"username.alphanum": "Username must contain only alphanumeric characters",
		"username.min":      "Username must be at least 3 characters long",
		"username.max":      "Username cannot exceed 30 characters",
	}
	emailMessages = map[string]string{
		"email.required": "Email is required",
		"email.email":    "Please provide a valid email address",
	}
	passwordMessages = map[string]string{
		"password.required": "Password is required",
		"password.min":      "Password must be at least 6 characters long",
		"password.password": "Password must contain at least one lowercase letter, one uppercase letter, and one number",
	}
	profileMessages = map[string]string{
		"firstName.max": "First name cannot exceed 50 characters",
		"lastName.max":  "Last name cannot exceed 50 characters",
		"role.oneof":    "Role must be one of: admin, manager, user",
	}
)

func mergeMessages(sets ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, set := range sets {
		for k, v := range set {
			out[k] = v
		}
	}
	return out
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

func lowerPtr(s *string) {
	if s != nil {
		*s = strings.ToLower(strings.TrimSpace(*s))
	}
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username  string `json:"username" validate:"required,alphanum,min=3,max=30"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6,password"`
	FirstName string `json:"firstName" validate:"max=50"`
	LastName  string `json:"lastName" validate:"max=50"`
	Role      string `json:"role" validate:"oneof=admin manager user"`
}

func (r *RegisterRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	if r.Role == "" {
		r.Role = string(types.RoleUser)
	}
}

func (r *RegisterRequest) Messages() map[string]string {
	return mergeMessages(usernameMessages, emailMessages, passwordMessages, profileMessages)
}

func (r RegisterRequest) registration() services.Registration {
	return services.Registration{
		Username:  r.Username,
		Email:     r.Email,
		Password:  r.Password,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Role:      types.Role(r.Role),
	}
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r *LoginRequest) Messages() map[string]string {
	return mergeMessages(emailMessages, passwordMessages)
}

// UpdateProfileRequest is the body of PUT /auth/profile. Absent fields stay
// unchanged; an empty team clears it.
type UpdateProfileRequest struct {
	Username  *string  `json:"username" validate:"omitnil,alphanum,min=3,max=30"`
	Email     *string  `json:"email" validate:"omitnil,email"`
	FirstName *string  `json:"firstName" validate:"omitnil,max=50"`
	LastName  *string  `json:"lastName" validate:"omitnil,max=50"`
	Role      *string  `json:"role" validate:"omitnil,oneof=admin manager user"`
	Team      []string `json:"team" validate:"omitempty,max=100,dive,objectid"`
}

func (r *UpdateProfileRequest) Normalize() {
	trimPtr(r.Username)
	lowerPtr(r.Email)
	trimPtr(r.FirstName)
	trimPtr(r.LastName)
}

func (r *UpdateProfileRequest) Messages() map[string]string {
	return mergeMessages(usernameMessages, emailMessages, profileMessages)
}

func (r UpdateProfileRequest) patch() (types.UserPatch, error) {
	patch := types.UserPatch{
		Username:  r.Username,
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
	}
	if r.Role != nil {
		role := types.Role(*r.Role)
		patch.Role = &role
	}
	if r.Team != nil {
		team, err := services.ParseObjectIDs("team", r.Team)
		if err != nil {
			return types.UserPatch{}, err
		}
		patch.Team = team
	}
	return patch, nil
}

// ChangePasswordRequest is the body of PUT /auth/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required,min=6"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

func (r *ChangePasswordRequest) Messages() map[string]string {
	return map[string]string{
		"currentPassword.required": "Current password is required",
		"newPassword.required":     "New password is required",
		"newPassword.min":          "Password must be at least 6 characters long",
	}
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (r *RefreshRequest) Normalize() {
	r.RefreshToken = strings.TrimSpace(r.RefreshToken)
}

func (r *RefreshRequest) Messages() map[string]string {
	return map[string]string{"refreshToken.required": "Refresh token is required"}
}

// ListUsersQuery is the query string of GET /user.
type ListUsersQuery struct {
	Page     int    `json:"page" validate:"gte=1"`
	Limit    int    `json:"limit" validate:"gte=1,lte=100"`
	Role     string `json:"role" validate:"omitempty,oneof=admin manager user"`
	IsActive *bool  `json:"isActive"`
	Search   string `json:"search" validate:"max=100"`
}

func (q *ListUsersQuery) Normalize() {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = services.DefaultPageSize
	}
	q.Role = strings.TrimSpace(q.Role)
	q.Search = strings.TrimSpace(q.Search)
}

func (q *ListUsersQuery) Messages() map[string]string {
	return profileMessages
}

func (q ListUsersQuery) filter() types.UserFilter {
	f := types.UserFilter{
		IsActive: q.IsActive,
		Search:   q.Search,
		Page:     q.Page,
		Limit:    q.Limit,
	}
	if q.Role != "" {
		role := types.Role(q.Role)
		f.Role = &role
	}
	return f
}

// CreateUserRequest is the body of POST /user.
type CreateUserRequest struct {
	Username  string   `json:"username" validate:"required,alphanum,min=3,max=30"`
	Email     string   `json:"email" validate:"required,email"`
	Password  string   `json:"password" validate:"required,min=6,password"`
	FirstName string   `json:"firstName" validate:"max=50"`
	LastName  string   `json:"lastName" validate:"max=50"`
	Role      string   `json:"role" validate:"oneof=admin manager user"`
	IsActive  *bool    `json:"isActive"`
	Team      []string `json:"team" validate:"omitempty,max=100,dive,objectid"`
}

func (r *CreateUserRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	if r.Role == "" {
		r.Role = string(types.RoleUser)
	}
}

func (r *CreateUserRequest) Messages() map[string]string {
	return mergeMessages(usernameMessages, emailMessages, passwordMessages, profileMessages)
}

// NewUser converts the request into the service input.
func (r CreateUserRequest) NewUser() (services.NewUser, error) {
	team, err := services.ParseObjectIDs("team", r.Team)
	if err != nil {
		return services.NewUser{}, err
	}
	return services.NewUser{
		Username:  r.Username,
		Email:     r.Email,
		Password:  r.Password,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Role:      types.Role(r.Role),
		IsActive:  r.IsActive,
		Team:      team,
	}, nil
}

// TeamParams are the path parameters of GET /user/team/{id}.
type TeamParams struct {
	ID string `json:"id" validate:"required,objectid"`
}

func (p *TeamParams) Messages() map[string]string {
	return map[string]string{"id.objectid": "Invalid ID provided"}
}
