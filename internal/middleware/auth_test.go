package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"creditflow/internal/config"
	"creditflow/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func assertErrorCode(t *testing.T, resp *http.Response, code string) {
	t.Helper()
	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, code, body.Code)
	assert.NotEmpty(t, body.Error)
}

func TestAuthRequired(t *testing.T) {
	app := fiber.New()
	InitMiddleware(&config.Config{JWTSecret: testSecret})

	app.Get("/test", AuthRequired, func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"actor": Actor(c),
			"role":  c.Locals(LocalRole),
		})
	})

	issue := func(actor, role string, ttl time.Duration) string {
		token, err := IssueToken(testSecret, actor, role, ttl)
		require.NoError(t, err)
		return token
	}

	expired := func() string {
		claims := ActorClaims{
			Role: RoleCashier,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "Jane",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		}
		s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		return s
	}

	foreign := func() string {
		s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "Jane", "role": RoleAdmin,
		}).SignedString([]byte("some-other-secret"))
		return s
	}

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
		expectedActor  string
		expectedRole   string
	}{
		{
			name:           "Cashier token",
			authHeader:     "Bearer " + issue("Jane", RoleCashier, time.Hour),
			expectedStatus: http.StatusOK,
			expectedActor:  "Jane",
			expectedRole:   RoleCashier,
		},
		{
			name:           "Admin token without expiry",
			authHeader:     "Bearer " + issue("Root", RoleAdmin, 0),
			expectedStatus: http.StatusOK,
			expectedActor:  "Root",
			expectedRole:   RoleAdmin,
		},
		{
			name:           "Missing Header",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Invalid Format",
			authHeader:     "Basic dXNlcjpwYXNz",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Malformed Token",
			authHeader:     "Bearer malformed.token.here",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Expired Token",
			authHeader:     "Bearer " + expired(),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Wrong Secret",
			authHeader:     "Bearer " + foreign(),
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusOK {
				var body map[string]string
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, tt.expectedActor, body["actor"])
				assert.Equal(t, tt.expectedRole, body["role"])
				return
			}
			assertErrorCode(t, resp, models.CodeUnauthorized)
		})
	}
}

func TestIssueTokenRejectsBadInput(t *testing.T) {
	_, err := IssueToken(testSecret, " ", RoleCashier, time.Hour)
	assert.Error(t, err)
	_, err = IssueToken(testSecret, "Jane", "manager", time.Hour)
	assert.Error(t, err)
}

func TestAdminRequired(t *testing.T) {
	app := fiber.New()
	InitMiddleware(&config.Config{JWTSecret: testSecret})
	app.Get("/admin", AuthRequired, AdminRequired, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	for role, want := range map[string]int{
		RoleAdmin:   http.StatusNoContent,
		RoleCashier: http.StatusForbidden,
	} {
		token, err := IssueToken(testSecret, "someone", role, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, role)
		if want == http.StatusForbidden {
			assertErrorCode(t, resp, models.CodeForbidden)
		}
		_ = resp.Body.Close()
	}
}

func TestWebSocketAuthRequiredAcceptsQueryToken(t *testing.T) {
	app := fiber.New()
	InitMiddleware(&config.Config{JWTSecret: testSecret})
	app.Get("/ws", WebSocketAuthRequired, func(c *fiber.Ctx) error {
		return c.SendString(Actor(c))
	})

	token, err := IssueToken(testSecret, "Jane", RoleCashier, time.Hour)
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assertErrorCode(t, resp, models.CodeUnauthorized)
	_ = resp.Body.Close()
}
