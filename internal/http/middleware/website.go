package middleware

import (
	"log/slog"
	"regexp"

	"github.com/gofiber/fiber/v2"
)

const websiteIDKey = "website_id"

var websiteIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// WebsiteFilter validates the :website_id route parameter and stores it in
// the request locals for WebsiteID.
func WebsiteFilter(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		websiteID := c.Params(websiteIDKey)
		if !websiteIDPattern.MatchString(websiteID) {
			logger.Warn("Invalid website_id provided", slog.String("website_id", websiteID))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid website_id",
				"code":    "INVALID_WEBSITE",
			})
		}

		c.Locals(websiteIDKey, websiteID)
		return c.Next()
	}
}

// WebsiteID returns the id stored by WebsiteFilter, falling back to the route parameter.
func WebsiteID(c *fiber.Ctx) string {
	if id, ok := c.Locals(websiteIDKey).(string); ok {
		return id
	}
	return c.Params(websiteIDKey)
}
