package middlewares

import (
	"net/http/httptest"
	"testing"

	t_token "chat_sync_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp() *fiber.App {
	app := fiber.New()
	app.Use(JWTMiddleware())
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(TokenUserID).(string))
	})
	return app
}

func TestJWTMiddleware_MissingToken(t *testing.T) {
	resp, err := newTestApp().Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTMiddleware_QueryToken(t *testing.T) {
	tk, err := t_token.GenerateJWT("u1", string(t_token.RoleMember), "test")
	require.NoError(t, err)

	resp, err := newTestApp().Test(httptest.NewRequest("GET", "/me?auth="+tk, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTMiddleware_BearerHeader(t *testing.T) {
	tk, err := t_token.GenerateJWT("u2", string(t_token.RoleMember), "test")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tk)
	resp, err := newTestApp().Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTMiddleware_InvalidToken(t *testing.T) {
	resp, err := newTestApp().Test(httptest.NewRequest("GET", "/me?auth=garbage", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
