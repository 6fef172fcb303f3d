package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usercore/apiserver/config"
	"github.com/usercore/apiserver/internal/auth"
	"github.com/usercore/apiserver/internal/services"
	"github.com/usercore/apiserver/internal/tests/memstore"
	"github.com/usercore/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var testJWT = config.JWTConfig{
	AccessSecret:  "test-access-secret",
	AccessTTL:     15 * time.Minute,
	RefreshSecret: "test-refresh-secret",
	RefreshTTL:    time.Hour,
}

type testApp struct {
	repo   *memstore.Repository
	tokens *auth.TokenService
	router chi.Router
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := zap.NewNop()
	repo := memstore.New()
	tokens := auth.NewTokenService(testJWT)
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	accounts := services.NewAccountService(repo, hasher, tokens, nil)
	users := services.NewUserService(repo, hasher, nil)
	authenticate := Authenticate(tokens, accounts, log)

	r := chi.NewRouter()
	r.Use(RequestID, Recovery(log))
	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)
	r.Get("/healthz", Healthz)
	r.Get("/readyz", Readyz(repo, log))
	r.Route("/auth", func(r chi.Router) { AuthRouter(r, accounts, authenticate, log) })
	r.Route("/user", func(r chi.Router) { UserRouter(r, users, authenticate, log) })

	return &testApp{repo: repo, tokens: tokens, router: r}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

type registered struct {
	User   types.UserResponse `json:"user"`
	Tokens types.Tokens       `json:"tokens"`
}

func (a *testApp) register(t *testing.T, username, email string) registered {
	t.Helper()
	rec, env := a.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"username": username,
		"email":    email,
		"password": "Secret123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out registered
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (a *testApp) promote(t *testing.T, id primitive.ObjectID, role types.Role) {
	t.Helper()
	_, err := a.repo.Update(context.Background(), id, types.UserPatch{Role: &role})
	require.NoError(t, err)
}

func fieldMessages(env envelope) map[string]string {
	out := map[string]string{}
	for _, e := range env.Errors {
		out[e.Field] = e.Message
	}
	return out
}

func TestRegister(t *testing.T) {
	app := newTestApp(t)

	rec, env := app.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"username":  "alice",
		"email":     " Alice@Example.com ",
		"password":  "Secret123",
		"firstName": "Alice",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "User registered successfully", env.Message)
	assert.NotContains(t, rec.Body.String(), "password")

	var out registered
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "alice@example.com", out.User.Email)
	assert.Equal(t, types.RoleUser, out.User.Role)
	assert.NotEmpty(t, out.Tokens.AccessToken)
	assert.NotEmpty(t, out.Tokens.RefreshToken)
}

func TestRegisterValidation(t *testing.T) {
	app := newTestApp(t)

	rec, env := app.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"username": "a!",
		"email":    "nope",
		"password": "short",
		"admin":    true,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "validation error", env.Message)
	assert.Equal(t, map[string]string{
		"admin":    `"admin" is not allowed`,
		"username": "Username must contain only alphanumeric characters",
		"email":    "Please provide a valid email address",
		"password": "Password must be at least 6 characters long",
	}, fieldMessages(env))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "alice", "alice@example.com")

	rec, env := app.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"username": "alice2",
		"email":    "alice@example.com",
		"password": "Secret123",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Email already registered", env.Message)
}

func TestLogin(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "alice", "alice@example.com")

	rec, env := app.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": "alice@example.com", "password": "Secret123"})
	require.Equal(t, http.StatusOK, rec.Code)
	var out registered
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.NotNil(t, out.User.LastLogin)

	rec, env = app.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": "alice@example.com", "password": "Wrong1234"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials.", env.Message)

	rec, env = app.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": "ghost@example.com", "password": "Secret123"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "user is not exist! please register first.", env.Message)
}

func TestAuthenticateFailures(t *testing.T) {
	app := newTestApp(t)
	reg := app.register(t, "alice", "alice@example.com")

	expired, err := auth.NewTokenService(config.JWTConfig{
		AccessSecret:  testJWT.AccessSecret,
		AccessTTL:     -time.Minute,
		RefreshSecret: testJWT.RefreshSecret,
		RefreshTTL:    time.Hour,
	}).IssueAccessToken(reg.User.ID.Hex(), reg.User.Email, "user")
	require.NoError(t, err)

	ghost, err := app.tokens.IssueAccessToken(primitive.NewObjectID().Hex(), "ghost@example.com", "user")
	require.NoError(t, err)

	cases := []struct {
		name    string
		header  string
		message string
	}{
		{"missing", "", "access token required"},
		{"wrong scheme", "Token " + reg.Tokens.AccessToken, "access token required"},
		{"lowercase scheme", "bearer " + reg.Tokens.AccessToken, "access token required"},
		{"empty token", "Bearer ", "access token required"},
		{"garbage", "Bearer not.a.token", "invalid token"},
		{"refresh token", "Bearer " + reg.Tokens.RefreshToken, "invalid token"},
		{"expired", "Bearer " + expired, "token expired, please login again"},
		{"unknown user", "Bearer " + ghost, "user not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			app.router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			var env envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, tc.message, env.Message)
		})
	}
}

func TestAuthenticationRunsBeforeBodyValidation(t *testing.T) {
	app := newTestApp(t)

	rec, env := app.do(t, http.MethodPut, "/auth/profile", "", map[string]any{"username": "!"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "access token required", env.Message)
}

func TestProfileAndUpdate(t *testing.T) {
	app := newTestApp(t)
	reg := app.register(t, "alice", "alice@example.com")
	app.register(t, "bob", "bob@example.com")

	rec, env := app.do(t, http.MethodGet, "/auth/profile", reg.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		User types.UserResponse `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "alice", got.User.Username)
	assert.Equal(t, "alice@example.com", got.User.Email)

	rec, env = app.do(t, http.MethodPut, "/auth/profile", reg.Tokens.AccessToken, map[string]any{"username": "bob"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Username already taken", env.Message)

	rec, env = app.do(t, http.MethodPut, "/auth/profile", reg.Tokens.AccessToken, map[string]any{"lastName": " Smith "})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "Smith", got.User.LastName)
	assert.Equal(t, "alice", got.User.Username)
}

func TestChangePassword(t *testing.T) {
	app := newTestApp(t)
	reg := app.register(t, "alice", "alice@example.com")

	rec, env := app.do(t, http.MethodPut, "/auth/change-password", reg.Tokens.AccessToken, map[string]any{
		"currentPassword": "Wrong1234",
		"newPassword":     "Fresh1234",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "current password is not valid", env.Message)

	rec, _ = app.do(t, http.MethodPut, "/auth/change-password", reg.Tokens.AccessToken, map[string]any{
		"currentPassword": "Secret123",
		"newPassword":     "Fresh1234",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = app.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": "alice@example.com", "password": "Fresh1234"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefresh(t *testing.T) {
	app := newTestApp(t)
	reg := app.register(t, "alice", "alice@example.com")

	rec, env := app.do(t, http.MethodPost, "/auth/refresh", reg.Tokens.AccessToken, map[string]any{"refreshToken": reg.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var out registered
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, reg.Tokens.RefreshToken, out.Tokens.RefreshToken)
	assert.NotEmpty(t, out.Tokens.AccessToken)

	rec, env = app.do(t, http.MethodPost, "/auth/refresh", reg.Tokens.AccessToken, map[string]any{"refreshToken": reg.Tokens.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Refresh token is not valid", env.Message)
}

func TestLogoutIsNoop(t *testing.T) {
	app := newTestApp(t)

	rec, env := app.do(t, http.MethodPost, "/auth/logout", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logout successful", env.Message)
}

func TestUserRoutesRequireAdmin(t *testing.T) {
	app := newTestApp(t)
	reg := app.register(t, "alice", "alice@example.com")

	for _, path := range []string{"/user", "/user/stats"} {
		rec, env := app.do(t, http.MethodGet, path, reg.Tokens.AccessToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
		assert.Equal(t, "access denied", env.Message)
	}
	rec, _ := app.do(t, http.MethodGet, "/user", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminListCreateStats(t *testing.T) {
	app := newTestApp(t)
	admin := app.register(t, "admin", "admin@example.com")
	app.promote(t, admin.User.ID, types.RoleAdmin)
	token := admin.Tokens.AccessToken

	rec, env := app.do(t, http.MethodPost, "/user", token, map[string]any{
		"username": "worker",
		"email":    "worker@example.com",
		"password": "Secret123",
		"role":     "user",
		"isActive": false,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "User created successfully", env.Message)

	rec, env = app.do(t, http.MethodGet, "/user?page=1&limit=1&role=user", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page services.UserPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, types.Pagination{Page: 1, Limit: 1, Total: 1, TotalPages: 1}, page.Pagination)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "worker", page.Users[0].Username)
	assert.False(t, page.Users[0].IsActive)

	rec, env = app.do(t, http.MethodGet, "/user?limit=500&extra=1", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]string{
		"extra": `"extra" is not allowed`,
		"limit": "limit must be less than or equal to 100",
	}, fieldMessages(env))

	rec, env = app.do(t, http.MethodGet, "/user/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Stats types.UserStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, types.UserStats{TotalUsers: 2, TotalAdmins: 1, TotalRegularUsers: 1, TotalActiveUsers: 1}, stats.Stats)
}

func TestTeamRoute(t *testing.T) {
	app := newTestApp(t)
	lead := app.register(t, "lead", "lead@example.com")
	member := app.register(t, "member", "member@example.com")
	app.promote(t, lead.User.ID, types.RoleManager)

	rec, _ := app.do(t, http.MethodPut, "/auth/profile", lead.Tokens.AccessToken, map[string]any{
		"team": []string{member.User.ID.Hex()},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := app.do(t, http.MethodGet, "/user/team/"+lead.User.ID.Hex(), lead.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view services.TeamView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Len(t, view.Members, 1)
	assert.Equal(t, "member", view.Members[0].Username)

	rec, env = app.do(t, http.MethodGet, "/user/team/not-an-id", lead.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid ID provided", fieldMessages(env)["id"])

	rec, _ = app.do(t, http.MethodGet, "/user/team/"+primitive.NewObjectID().Hex(), lead.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = app.do(t, http.MethodGet, "/user/team/"+lead.User.ID.Hex(), member.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouteNotFoundAndMethodNotAllowed(t *testing.T) {
	app := newTestApp(t)

	rec, env := app.do(t, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route not found", env.Message)

	rec, _ = app.do(t, http.MethodDelete, "/auth/login", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	rec, env := app.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, _ = app.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
