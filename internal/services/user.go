package services

import (
	"context"
	"strings"
	"time"

	"github.com/usercore/apiserver/internal/apperr"
	"github.com/usercore/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// NewUser is an account created by an administrator.
type NewUser struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      types.Role
	IsActive  *bool
	Team      []primitive.ObjectID
}

// UserPage is one page of a user listing.
type UserPage struct {
	Users      []types.UserResponse `json:"users"`
	Pagination types.Pagination     `json:"pagination"`
}

// TeamView is a user and its direct reports.
type TeamView struct {
	Manager types.TeamMember     `json:"manager"`
	Members []types.UserResponse `json:"members"`
}

// UserService encapsulates the administrative user use-cases.
type UserService struct {
	repo   UserRepository
	hasher PasswordHasher
	events EventNotifier
	now    func() time.Time
}

func NewUserService(repo UserRepository, hasher PasswordHasher, events EventNotifier) *UserService {
	if events == nil {
		events = nopNotifier{}
	}
	return &UserService{repo: repo, hasher: hasher, events: events, now: time.Now}
}

// List returns one page of users, newest first.
func (s *UserService) List(ctx context.Context, filter types.UserFilter) (UserPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = DefaultPageSize
	}
	if filter.Limit > MaxPageSize {
		filter.Limit = MaxPageSize
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return UserPage{}, apperr.Internal(err)
	}
	team, err := populate(ctx, s.repo, users...)
	if err != nil {
		return UserPage{}, apperr.Internal(err)
	}

	out := make([]types.UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, types.NewUserResponse(u, team))
	}
	return UserPage{
		Users:      out,
		Pagination: types.NewPagination(filter.Page, filter.Limit, total),
	}, nil
}

// Create adds an account on behalf of an administrator.
func (s *UserService) Create(ctx context.Context, in NewUser) (types.UserResponse, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)
	if err := ensureAvailable(ctx, s.repo, email, username); err != nil {
		return types.UserResponse{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return types.UserResponse{}, apperr.Internal(err)
	}

	role := in.Role
	if role == "" {
		role = types.RoleUser
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         role,
		Team:         in.Team,
		IsActive:     active,
	})
	if err != nil {
		return types.UserResponse{}, storeError(err)
	}
	s.events.Notify(ctx, types.NewAccountEvent(types.EventCreated, user, s.now()))

	team, err := populate(ctx, s.repo, user)
	if err != nil {
		return types.UserResponse{}, apperr.Internal(err)
	}
	return types.NewUserResponse(user, team), nil
}

// Stats counts users by role and activity.
func (s *UserService) Stats(ctx context.Context) (types.UserStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return types.UserStats{}, apperr.Internal(err)
	}
	return stats, nil
}

// Team returns the direct reports of the user with id.
func (s *UserService) Team(ctx context.Context, id primitive.ObjectID) (TeamView, error) {
	manager, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return TeamView{}, storeError(err)
	}
	members, err := populate(ctx, s.repo, manager)
	if err != nil {
		return TeamView{}, apperr.Internal(err)
	}

	byID := make(map[primitive.ObjectID]types.User, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}
	view := TeamView{
		Manager: types.NewTeamMember(manager),
		Members: make([]types.UserResponse, 0, len(members)),
	}
	for _, id := range manager.Team {
		if m, ok := byID[id]; ok {
			view.Members = append(view.Members, types.NewUserResponse(m, nil))
		}
	}
	return view, nil
}
