package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TeamMember is the summary of a team reference. When the team was not
// populated only ID is set.
type TeamMember struct {
	ID        primitive.ObjectID `json:"id"`
	Username  string             `json:"username,omitempty"`
	Email     string             `json:"email,omitempty"`
	FirstName string             `json:"firstName,omitempty"`
	LastName  string             `json:"lastName,omitempty"`
	Role      Role               `json:"role,omitempty"`
}

// UserResponse is the outbound shape of a user. It never carries the password hash.
type UserResponse struct {
	ID        primitive.ObjectID `json:"id"`
	Username  string             `json:"username"`
	Email     string             `json:"email"`
	FirstName string             `json:"firstName,omitempty"`
	LastName  string             `json:"lastName,omitempty"`
	FullName  string             `json:"fullName"`
	Role      Role               `json:"role"`
	IsActive  bool               `json:"isActive"`
	Team      []TeamMember       `json:"team"`
	TeamSize  int                `json:"teamSize"`
	LastLogin *time.Time         `json:"lastLogin,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// NewUserResponse builds the outbound view of u. Members found in populated
// are expanded; the rest are reported by id only.
func NewUserResponse(u User, populated []User) UserResponse {
	byID := make(map[primitive.ObjectID]User, len(populated))
	for _, m := range populated {
		byID[m.ID] = m
	}

	team := make([]TeamMember, 0, len(u.Team))
	for _, id := range u.Team {
		m, ok := byID[id]
		if !ok {
			team = append(team, TeamMember{ID: id})
			continue
		}
		team = append(team, NewTeamMember(m))
	}

	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FullName:  u.FullName(),
		Role:      u.Role,
		IsActive:  u.IsActive,
		Team:      team,
		TeamSize:  u.TeamSize(),
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// NewTeamMember summarizes u for embedding in another user's team.
func NewTeamMember(u User) TeamMember {
	return TeamMember{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
	}
}

// Tokens is the access/refresh pair handed out on register, login and refresh.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

// NewPagination computes page counts for total matching items.
func NewPagination(page, limit int, total int64) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}
