package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/usercore/apiserver/internal/apperr"
	"github.com/usercore/apiserver/internal/auth"
	"github.com/usercore/apiserver/internal/store"
	"github.com/usercore/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	msgUnknownEmail        = "user is not exist! please register first."
	msgBadCredentials      = "invalid credentials."
	msgBadCurrentPassword  = "current password is not valid"
	msgInvalidRefreshToken = "Refresh token is not valid"
	msgIdentityNotFound    = "user not found"
)

// Registration is the input of a self-service sign up.
type Registration struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      types.Role
}

// AuthResult is what a successful sign up, login or refresh hands back.
type AuthResult struct {
	User   types.User
	Tokens types.Tokens
}

// AccountService implements the self-service account flows.
type AccountService struct {
	repo   UserRepository
	hasher PasswordHasher
	tokens TokenIssuer
	events EventNotifier
	now    func() time.Time
}

func NewAccountService(repo UserRepository, hasher PasswordHasher, tokens TokenIssuer, events EventNotifier) *AccountService {
	if events == nil {
		events = nopNotifier{}
	}
	return &AccountService{repo: repo, hasher: hasher, tokens: tokens, events: events, now: time.Now}
}

// Register creates an account and signs it in.
func (s *AccountService) Register(ctx context.Context, reg Registration) (AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	username := strings.TrimSpace(reg.Username)
	if err := ensureAvailable(ctx, s.repo, email, username); err != nil {
		return AuthResult{}, err
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}

	role := reg.Role
	if role == "" {
		role = types.RoleUser
	}
	user, err := s.repo.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		Role:         role,
		IsActive:     true,
	})
	if err != nil {
		return AuthResult{}, storeError(err)
	}

	tokens, err := s.issue(user)
	if err != nil {
		return AuthResult{}, err
	}
	s.events.Notify(ctx, types.NewAccountEvent(types.EventRegistered, user, s.now()))
	return AuthResult{User: user, Tokens: tokens}, nil
}

// Login checks credentials, records the login time and signs the user in.
func (s *AccountService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthResult{}, apperr.Unauthorized(msgUnknownEmail)
		}
		return AuthResult{}, apperr.Internal(err)
	}

	ok, err := s.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	if !ok {
		return AuthResult{}, apperr.Unauthorized(msgBadCredentials)
	}

	now := s.now().UTC()
	user, err = s.repo.Update(ctx, user.ID, types.UserPatch{LastLogin: &now})
	if err != nil {
		return AuthResult{}, storeError(err)
	}

	tokens, err := s.issue(user)
	if err != nil {
		return AuthResult{}, err
	}
	s.events.Notify(ctx, types.NewAccountEvent(types.EventLoggedIn, user, now))
	return AuthResult{User: user, Tokens: tokens}, nil
}

// Refresh mints a new access token for the owner of refreshToken. The
// refresh token itself is handed back unchanged.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return AuthResult{}, apperr.Wrap(err, apperr.CodeUnauthorized, msgInvalidRefreshToken)
	}
	id, err := store.ParseID(claims.UserID)
	if err != nil {
		return AuthResult{}, apperr.Wrap(err, apperr.CodeUnauthorized, msgInvalidRefreshToken)
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthResult{}, apperr.Wrap(err, apperr.CodeUnauthorized, msgInvalidRefreshToken)
		}
		return AuthResult{}, apperr.Internal(err)
	}

	access, err := s.tokens.IssueAccessToken(user.ID.Hex(), user.Email, string(user.Role))
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	return AuthResult{User: user, Tokens: types.Tokens{AccessToken: access, RefreshToken: refreshToken}}, nil
}

// ChangePassword replaces the password of user after checking the current
// one. The stored hash is untouched when the check fails.
func (s *AccountService) ChangePassword(ctx context.Context, user types.User, current, next string) error {
	ok, err := s.hasher.Compare(user.PasswordHash, current)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return apperr.New(apperr.CodeValidation, msgBadCurrentPassword)
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return apperr.Internal(err)
	}
	updated, err := s.repo.Update(ctx, user.ID, types.UserPatch{PasswordHash: &hash})
	if err != nil {
		return storeError(err)
	}
	s.events.Notify(ctx, types.NewAccountEvent(types.EventPasswordChanged, updated, s.now()))
	return nil
}

// Profile returns the user with id and its team summaries.
func (s *AccountService) Profile(ctx context.Context, id primitive.ObjectID) (types.UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.UserResponse{}, storeError(err)
	}
	team, err := populate(ctx, s.repo, user)
	if err != nil {
		return types.UserResponse{}, apperr.Internal(err)
	}
	return types.NewUserResponse(user, team), nil
}

// UpdateProfile applies patch to the user with id. Only the supplied fields
// change.
func (s *AccountService) UpdateProfile(ctx context.Context, id primitive.ObjectID, patch types.UserPatch) (types.UserResponse, error) {
	if patch.Username != nil {
		taken, err := s.repo.UsernameTaken(ctx, *patch.Username, id)
		if err != nil {
			return types.UserResponse{}, apperr.Internal(err)
		}
		if taken {
			return types.UserResponse{}, apperr.Duplicate("username", msgUsernameTaken)
		}
	}
	if patch.Email != nil {
		email := strings.ToLower(*patch.Email)
		patch.Email = &email
	}
	// Credentials and bookkeeping have their own flows.
	patch.PasswordHash = nil
	patch.LastLogin = nil
	patch.IsActive = nil

	user, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return types.UserResponse{}, storeError(err)
	}
	team, err := populate(ctx, s.repo, user)
	if err != nil {
		return types.UserResponse{}, apperr.Internal(err)
	}
	return types.NewUserResponse(user, team), nil
}

// Identify resolves verified access token claims to the stored user, by
// email or, when the token carries none, by id.
func (s *AccountService) Identify(ctx context.Context, claims auth.Claims) (types.User, error) {
	var (
		user types.User
		err  error
	)
	if claims.Email != "" {
		user, err = s.repo.GetByEmailOrUsername(ctx, claims.Email, "")
	} else {
		id, perr := store.ParseID(claims.UserID)
		if perr != nil {
			return types.User{}, apperr.Unauthorized(msgIdentityNotFound)
		}
		user, err = s.repo.GetByID(ctx, id)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.Unauthorized(msgIdentityNotFound)
		}
		return types.User{}, apperr.Internal(err)
	}
	return user, nil
}

func (s *AccountService) issue(user types.User) (types.Tokens, error) {
	access, err := s.tokens.IssueAccessToken(user.ID.Hex(), user.Email, string(user.Role))
	if err != nil {
		return types.Tokens{}, apperr.Internal(err)
	}
	refresh, err := s.tokens.IssueRefreshToken(user.ID.Hex())
	if err != nil {
		return types.Tokens{}, apperr.Internal(err)
	}
	return types.Tokens{AccessToken: access, RefreshToken: refresh}, nil
}
