package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware extracts the identity headers the Gateway
// injects after authentication. The engine itself never authenticates;
// a request without X-User-ID did not come through the Gateway.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		if userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID missing on %s, request must come through gateway", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
			})
		}

		c.Locals("user_id", userID)
		c.Locals("group_id", c.Get("X-Group-ID"))

		return c.Next()
	}
}
