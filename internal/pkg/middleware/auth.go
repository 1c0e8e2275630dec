package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/QuestPassApp/QuestPass/internal/pkg/clientcontext"
)

// RequireRole gates a route on the authenticated client acting in one of the
// given roles. It expects APIKeyAuthMiddleware to run earlier in the chain.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cc := clientcontext.GetClientContext(c)
		if !cc.IsAuthenticated {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}
		for _, role := range roles {
			if cc.Role == role {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Client role is not allowed to call this endpoint"})
	}
}
