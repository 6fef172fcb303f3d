package services

import (
	"context"
	"errors"

	"github.com/usercore/apiserver/internal/apperr"
	"github.com/usercore/apiserver/internal/auth"
	"github.com/usercore/apiserver/internal/store"
	"github.com/usercore/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByEmailOrUsername(ctx context.Context, email, username string) (types.User, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]types.User, error)
	UsernameTaken(ctx context.Context, username string, exclude primitive.ObjectID) (bool, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, id primitive.ObjectID, patch types.UserPatch) (types.User, error)
	List(ctx context.Context, filter types.UserFilter) ([]types.User, int64, error)
	Stats(ctx context.Context) (types.UserStats, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) (bool, error)
}

// TokenIssuer mints and verifies the access/refresh pair.
type TokenIssuer interface {
	IssueAccessToken(userID, email, role string) (string, error)
	IssueRefreshToken(userID string) (string, error)
	VerifyRefresh(token string) (auth.Claims, error)
}

// EventNotifier receives account events. Implementations must not block for
// long and must not fail the caller.
type EventNotifier interface {
	Notify(ctx context.Context, ev types.AccountEvent)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, types.AccountEvent) {}

const (
	msgEmailTaken    = "Email already registered"
	msgUsernameTaken = "Username already taken"
	msgUserNotFound  = "User not found"
)

// ensureAvailable rejects an email or username that is already registered.
func ensureAvailable(ctx context.Context, repo UserRepository, email, username string) error {
	existing, err := repo.GetByEmailOrUsername(ctx, email, username)
	switch {
	case err == nil:
		if existing.Email == email {
			return apperr.Duplicate("email", msgEmailTaken)
		}
		return apperr.Duplicate("username", msgUsernameTaken)
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return apperr.Internal(err)
	}
}

// storeError maps repository failures onto the apperr taxonomy.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}

	var dup *store.DuplicateError
	switch {
	case errors.As(err, &dup):
		switch dup.Field {
		case "email":
			return apperr.Duplicate("email", msgEmailTaken)
		case "username":
			return apperr.Duplicate("username", msgUsernameTaken)
		}
		return apperr.Duplicate(dup.Field, "Duplicate field error")
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(msgUserNotFound)
	case errors.Is(err, store.ErrInvalidID):
		return invalidID("id")
	}
	return apperr.Internal(err)
}

func invalidID(field string) *apperr.Error {
	return apperr.Validation("Invalid ID format", apperr.FieldError{Field: field, Message: "Invalid ID provided"})
}

// ParseObjectID converts a hex id, reporting failures against field.
func ParseObjectID(field, hex string) (primitive.ObjectID, error) {
	id, err := store.ParseID(hex)
	if err != nil {
		return primitive.NilObjectID, invalidID(field)
	}
	return id, nil
}

// ParseObjectIDs converts hex ids and drops duplicates, keeping first
// occurrence order.
func ParseObjectIDs(field string, hexes []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(hexes))
	seen := make(map[primitive.ObjectID]bool, len(hexes))
	for _, h := range hexes {
		id, err := ParseObjectID(field, h)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// populate loads every user referenced by the teams of users with one query.
func populate(ctx context.Context, repo UserRepository, users ...types.User) ([]types.User, error) {
	var ids []primitive.ObjectID
	seen := map[primitive.ObjectID]bool{}
	for _, u := range users {
		for _, id := range u.Team {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return repo.GetByIDs(ctx, ids)
}
