package serverutils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims, key string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func body(t *testing.T, resp io.Reader) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp).Decode(&out))
	return out
}

func TestParseToken(t *testing.T) {
	valid := sign(t, jwt.MapClaims{"user_id": "admin-1", "role": "admin", "exp": time.Now().Add(time.Hour).Unix()}, secret)
	claims, err := ParseToken(valid, secret)
	require.NoError(t, err)
	assert.Equal(t, Claims{UserID: "admin-1", Role: "admin"}, claims)

	tests := map[string]string{
		"wrong secret": sign(t, jwt.MapClaims{"user_id": "admin-1"}, "other"),
		"expired":      sign(t, jwt.MapClaims{"user_id": "admin-1", "exp": time.Now().Add(-time.Hour).Unix()}, secret),
		"no user":      sign(t, jwt.MapClaims{"role": "admin"}, secret),
		"garbage":      "not-a-token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(token, secret)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJwtMiddlewareAndRoles(t *testing.T) {
	app := fiber.New()
	app.Use(NewJwtMiddleware(secret))
	app.Get("/me", func(c *fiber.Ctx) error {
		id, _ := UserID(c)
		return c.SendString(id)
	})
	app.Post("/admin", RequireRole("admin"), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.MapClaims{"user_id": "finance-2", "role": "finance"}, secret))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "finance-2", string(raw))

	req = httptest.NewRequest("POST", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.MapClaims{"user_id": "finance-2", "role": "finance"}, secret))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest("POST", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.MapClaims{"user_id": "admin-1", "role": "admin"}, secret))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware(nil))
	app.Get("/panic", func(c *fiber.Ctx) error { panic("boom") })
	app.Get("/missing", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusNotFound, "Notification not found") })
	app.Get("/plain", func(c *fiber.Ctx) error { return errors.New("db down") })

	tests := []struct {
		path    string
		code    int
		message string
	}{
		{"/panic", fiber.StatusInternalServerError, "Internal Server Error"},
		{"/missing", fiber.StatusNotFound, "Notification not found"},
		{"/plain", fiber.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.code, resp.StatusCode)
			assert.Equal(t, tt.message, body(t, resp.Body)["error"])
		})
	}
}
