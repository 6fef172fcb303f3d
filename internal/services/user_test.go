package services

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usercore/apiserver/internal/auth"
	"github.com/usercore/apiserver/internal/tests/memstore"
	"github.com/usercore/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

func newUserFixture(t *testing.T) (*UserService, *memstore.Repository, *recordingNotifier) {
	t.Helper()
	repo := memstore.New()
	events := &recordingNotifier{}
	return NewUserService(repo, auth.NewBcryptHasher(bcrypt.MinCost), events), repo, events
}

func seedUsers(t *testing.T, svc *UserService, n int, role types.Role) []types.UserResponse {
	t.Helper()
	out := make([]types.UserResponse, 0, n)
	for i := 0; i < n; i++ {
		u, err := svc.Create(context.Background(), NewUser{
			Username: fmt.Sprintf("%s%02d", role, i),
			Email:    fmt.Sprintf("%s%02d@example.com", role, i),
			Password: "Secret123",
			Role:     role,
		})
		require.NoError(t, err)
		out = append(out, u)
	}
	return out
}

func TestListPagination(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	seedUsers(t, svc, 25, types.RoleUser)

	first, err := svc.List(context.Background(), types.UserFilter{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, first.Users, 10)
	assert.Equal(t, types.Pagination{Page: 1, Limit: 10, Total: 25, TotalPages: 3, HasNext: true, HasPrev: false}, first.Pagination)

	last, err := svc.List(context.Background(), types.UserFilter{Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, last.Users, 5)
	assert.False(t, last.Pagination.HasNext)
	assert.True(t, last.Pagination.HasPrev)
}

func TestListNewestFirstAndDefaults(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	seeded := seedUsers(t, svc, 12, types.RoleUser)

	page, err := svc.List(context.Background(), types.UserFilter{Limit: 1000})
	require.NoError(t, err)

	assert.Equal(t, 1, page.Pagination.Page)
	assert.Equal(t, MaxPageSize, page.Pagination.Limit)
	require.Len(t, page.Users, 12)
	assert.Equal(t, seeded[11].ID, page.Users[0].ID)
	assert.Equal(t, seeded[0].ID, page.Users[11].ID)

	page, err = svc.List(context.Background(), types.UserFilter{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, page.Pagination.Limit)
	assert.Len(t, page.Users, DefaultPageSize)
}

func TestListFiltersAndSearch(t *testing.T) {
	svc, repo, _ := newUserFixture(t)
	seedUsers(t, svc, 3, types.RoleUser)
	managers := seedUsers(t, svc, 2, types.RoleManager)

	inactive := false
	_, err := repo.Update(context.Background(), managers[0].ID, types.UserPatch{IsActive: &inactive})
	require.NoError(t, err)

	role := types.RoleManager
	page, err := svc.List(context.Background(), types.UserFilter{Role: &role, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Pagination.Total)

	page, err = svc.List(context.Background(), types.UserFilter{Role: &role, IsActive: &inactive, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Users, 1)
	assert.Equal(t, managers[0].ID, page.Users[0].ID)

	page, err = svc.List(context.Background(), types.UserFilter{Search: "USER01", Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "user01", page.Users[0].Username)
}

func TestCreateAppliesAdminFields(t *testing.T) {
	svc, _, events := newUserFixture(t)
	members := seedUsers(t, svc, 2, types.RoleUser)

	inactive := false
	got, err := svc.Create(context.Background(), NewUser{
		Username:  "lead",
		Email:     "Lead@Example.com",
		Password:  "Secret123",
		FirstName: "Lea",
		Role:      types.RoleManager,
		IsActive:  &inactive,
		Team:      []primitive.ObjectID{members[0].ID, members[1].ID},
	})
	require.NoError(t, err)

	assert.Equal(t, "lead@example.com", got.Email)
	assert.Equal(t, types.RoleManager, got.Role)
	assert.False(t, got.IsActive)
	assert.Equal(t, 2, got.TeamSize)

	want := []types.TeamMember{
		{ID: members[0].ID, Username: "user00", Email: "user00@example.com", Role: types.RoleUser},
		{ID: members[1].ID, Username: "user01", Email: "user01@example.com", Role: types.RoleUser},
	}
	if diff := cmp.Diff(want, got.Team); diff != "" {
		t.Fatalf("team mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, events.kinds(), 3)
	assert.Equal(t, types.EventCreated, events.kinds()[2])
}

func TestCreateDefaultsRoleAndActive(t *testing.T) {
	svc, _, _ := newUserFixture(t)

	got, err := svc.Create(context.Background(), NewUser{Username: "plain", Email: "plain@example.com", Password: "Secret123"})
	require.NoError(t, err)
	assert.Equal(t, types.RoleUser, got.Role)
	assert.True(t, got.IsActive)
}

func TestCreateEnforcesUniqueness(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	seedUsers(t, svc, 1, types.RoleUser)

	_, err := svc.Create(context.Background(), NewUser{Username: "fresh", Email: "user00@example.com", Password: "Secret123"})
	requireAppErr(t, err, http.StatusConflict, "Email already registered")

	_, err = svc.Create(context.Background(), NewUser{Username: "user00", Email: "fresh@example.com", Password: "Secret123"})
	requireAppErr(t, err, http.StatusConflict, "Username already taken")
}

func TestStats(t *testing.T) {
	svc, repo, _ := newUserFixture(t)
	seedUsers(t, svc, 1, types.RoleAdmin)
	seedUsers(t, svc, 2, types.RoleManager)
	users := seedUsers(t, svc, 3, types.RoleUser)

	inactive := false
	_, err := repo.Update(context.Background(), users[0].ID, types.UserPatch{IsActive: &inactive})
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.UserStats{
		TotalUsers:        6,
		TotalAdmins:       1,
		TotalManagers:     2,
		TotalRegularUsers: 3,
		TotalActiveUsers:  5,
	}, stats)
}

func TestTeam(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	members := seedUsers(t, svc, 2, types.RoleUser)
	lead, err := svc.Create(context.Background(), NewUser{
		Username: "lead",
		Email:    "lead@example.com",
		Password: "Secret123",
		Role:     types.RoleManager,
		Team:     []primitive.ObjectID{members[1].ID, primitive.NewObjectID(), members[0].ID},
	})
	require.NoError(t, err)

	view, err := svc.Team(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "lead", view.Manager.Username)
	require.Len(t, view.Members, 2)
	assert.Equal(t, members[1].ID, view.Members[0].ID)
	assert.Equal(t, members[0].ID, view.Members[1].ID)

	_, err = svc.Team(context.Background(), primitive.NewObjectID())
	requireAppErr(t, err, http.StatusNotFound, "User not found")
}

func TestParseObjectIDs(t *testing.T) {
	a := primitive.NewObjectID()
	ids, err := ParseObjectIDs("team", []string{a.Hex(), a.Hex()})
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{a}, ids)

	_, err = ParseObjectIDs("team", []string{"zzz"})
	ae := requireAppErr(t, err, http.StatusBadRequest, "Invalid ID format")
	assert.Equal(t, "Invalid ID provided", ae.Fields[0].Message)
}
