package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// APIKeyAuth guards the analytics endpoints with a shared key sent as
// "Authorization: Bearer <key>" or "X-API-Key". An empty key disables the check.
func APIKeyAuth(apiKey string, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if apiKey == "" {
			return c.Next()
		}

		provided := c.Get("X-API-Key")
		if provided == "" {
			authHeader := c.Get(fiber.HeaderAuthorization)
			if !strings.HasPrefix(authHeader, "Bearer ") {
				return unauthorized(c, "Missing API key")
			}
			provided = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			logger.Warn("Rejected analytics request with invalid API key",
				slog.String("path", c.Path()),
				slog.String("ip", c.IP()))
			return unauthorized(c, "Invalid API key")
		}

		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"code":    "UNAUTHORIZED",
	})
}
