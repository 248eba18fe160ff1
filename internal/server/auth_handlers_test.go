package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"momoland/internal/config"
	"momoland/internal/models"
	"momoland/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testJWTSecret = "test-secret-which-is-long-enough-123"

func authTestServer(t *testing.T) (*Server, *gorm.DB, *miniredis.Miniredis) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Role{}, &models.Permission{}))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := &Server{
		config:   &config.Config{JWTSecret: testJWTSecret},
		db:       db,
		redis:    rdb,
		userRepo: repository.NewUserRepository(db),
	}
	return s, db, mr
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestSignup(t *testing.T) {
	s, db, _ := authTestServer(t)
	app := fiber.New()
	app.Post("/signup", s.Signup)

	tests := []struct {
		name           string
		body           map[string]string
		expectedStatus int
	}{
		{
			name: "Success",
			body: map[string]string{
				"username": "testuser",
				"email":    "test@example.com",
				"password": "Password123!abc",
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "Duplicate email",
			body: map[string]string{
				"username": "another",
				"email":    "test@example.com",
				"password": "Password123!abc",
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "Weak password",
			body: map[string]string{
				"username": "weakling",
				"email":    "weak@example.com",
				"password": "short",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "Bad username",
			body: map[string]string{
				"username": "_nope",
				"email":    "nope@example.com",
				"password": "Password123!abc",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "Missing fields",
			body: map[string]string{
				"username": "incomplete",
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, app, "/signup", tt.body)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}

	// Password never comes back in the response
	var user models.User
	require.NoError(t, db.Where("email = ?", "test@example.com").First(&user).Error)
	assert.NotEqual(t, "Password123!abc", user.Password)
}

func TestLogin(t *testing.T) {
	s, db, _ := authTestServer(t)
	app := fiber.New()
	app.Post("/login", s.Login)

	hashed, err := bcrypt.GenerateFromPassword([]byte("Password123!abc"), bcrypt.MinCost)
	require.NoError(t, err)
	db.Create(&models.User{Username: "login_user", Email: "login@example.com", Password: string(hashed)})

	t.Run("Success", func(t *testing.T) {
		resp := postJSON(t, app, "/login", map[string]string{
			"email":    "login@example.com",
			"password": "Password123!abc",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.NotEmpty(t, body["token"])
	})

	t.Run("Wrong password", func(t *testing.T) {
		resp := postJSON(t, app, "/login", map[string]string{
			"email":    "login@example.com",
			"password": "WrongPassword1!",
		})
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Unknown email", func(t *testing.T) {
		resp := postJSON(t, app, "/login", map[string]string{
			"email":    "ghost@example.com",
			"password": "Password123!abc",
		})
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestLogoutRevokesToken(t *testing.T) {
	s, db, _ := authTestServer(t)
	app := fiber.New()
	app.Post("/logout", s.Logout)
	app.Get("/protected", s.AuthRequired(), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	user := &models.User{Username: "leaver", Email: "leaver@example.com", Password: "x"}
	db.Create(user)
	token, err := s.generateToken(user.ID, user.Username)
	require.NoError(t, err)

	// Token works before logout
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, app, "/logout", map[string]string{"token": token})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	// Same token is now rejected
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Logging out garbage is still a 200 no-op
	resp = postJSON(t, app, "/logout", map[string]string{"token": "not-a-token"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRefreshRotatesToken(t *testing.T) {
	s, db, _ := authTestServer(t)
	app := fiber.New()
	app.Post("/refresh", s.Refresh)
	app.Get("/protected", s.AuthRequired(), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	user := &models.User{Username: "rotator", Email: "rotator@example.com", Password: "x"}
	db.Create(user)
	oldToken, err := s.generateToken(user.ID, user.Username)
	require.NoError(t, err)

	resp := postJSON(t, app, "/refresh", map[string]string{"token": oldToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	newToken, _ := body["token"].(string)
	require.NotEmpty(t, newToken)
	assert.NotEqual(t, oldToken, newToken)

	// The old token is revoked, the new one works
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+oldToken)
	got, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, got.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+newToken)
	got, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, got.StatusCode)
}
