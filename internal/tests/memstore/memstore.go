// Package memstore is an in-memory user repository for tests. It enforces the
// same uniqueness rules as the MongoDB indexes.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/usercore/apiserver/internal/store"
	"github.com/usercore/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Repository stores users in a map. The zero value is not usable; call New.
type Repository struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]types.User
	clock time.Time

	// FailCreate forces Create to fail, e.g. to simulate a lost insert race.
	FailCreate error
}

func New() *Repository {
	return &Repository{
		users: map[primitive.ObjectID]types.User{},
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *Repository) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *Repository) GetByID(_ context.Context, id primitive.ObjectID) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *Repository) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *Repository) GetByEmailOrUsername(_ context.Context, email, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.sorted() {
		if (email != "" && u.Email == strings.ToLower(email)) || (username != "" && u.Username == username) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *Repository) GetByIDs(_ context.Context, ids []primitive.ObjectID) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []types.User{}
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *Repository) UsernameTaken(_ context.Context, username string, exclude primitive.ObjectID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, u := range r.users {
		if u.Username == username && id != exclude {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repository) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreate != nil {
		return types.User{}, r.FailCreate
	}
	if err := r.unique(user, primitive.NilObjectID); err != nil {
		return types.User{}, err
	}
	user.ID = primitive.NewObjectID()
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = r.tick()
	user.UpdatedAt = user.CreatedAt
	if user.Team == nil {
		user.Team = []primitive.ObjectID{}
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *Repository) Update(_ context.Context, id primitive.ObjectID, p types.UserPatch) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = strings.ToLower(*p.Email)
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Team != nil {
		u.Team = p.Team
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
	if p.LastLogin != nil {
		t := *p.LastLogin
		u.LastLogin = &t
	}
	if err := r.unique(u, id); err != nil {
		return types.User{}, err
	}
	u.UpdatedAt = r.tick()
	r.users[id] = u
	return u, nil
}

func (r *Repository) List(_ context.Context, f types.UserFilter) ([]types.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []types.User
	search := strings.ToLower(f.Search)
	for _, u := range r.sorted() {
		if f.Role != nil && u.Role != *f.Role {
			continue
		}
		if f.IsActive != nil && u.IsActive != *f.IsActive {
			continue
		}
		if search != "" && !containsAny(search, u.Username, u.Email, u.FirstName, u.LastName) {
			continue
		}
		matched = append(matched, u)
	}
	total := int64(len(matched))
	start := int(f.Offset())
	if start > len(matched) {
		start = len(matched)
	}
	end := start + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return append([]types.User{}, matched[start:end]...), total, nil
}

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error { return nil }

func (r *Repository) Stats(_ context.Context) (types.UserStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s types.UserStats
	for _, u := range r.users {
		s.TotalUsers++
		if u.IsActive {
			s.TotalActiveUsers++
		}
		switch u.Role {
		case types.RoleAdmin:
			s.TotalAdmins++
		case types.RoleManager:
			s.TotalManagers++
		case types.RoleUser:
			s.TotalRegularUsers++
		}
	}
	return s, nil
}

func (r *Repository) unique(u types.User, self primitive.ObjectID) error {
	for id, other := range r.users {
		if id == self {
			continue
		}
		if other.Email == strings.ToLower(u.Email) {
			return &store.DuplicateError{Field: "email"}
		}
		if other.Username == u.Username {
			return &store.DuplicateError{Field: "username"}
		}
	}
	return nil
}

// sorted returns users newest first.
func (r *Repository) sorted() []types.User {
	out := make([]types.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func containsAny(needle string, values ...string) bool {
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}
