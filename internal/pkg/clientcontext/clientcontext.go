package clientcontext

import "github.com/gofiber/fiber/v2"

// ContextKey is the fiber.Locals key holding the authenticated client.
const ContextKey = "CLIENT_CONTEXT"

// ClientContext represents the authenticated API collaborator for a request
type ClientContext struct {
	ClientID        uint   `json:"client_id"`
	Name            string `json:"name"`
	Role            string `json:"role"`
	IsAuthenticated bool   `json:"is_authenticated"`
}

// GetClientContext retrieves the client context from fiber context
// Returns a default unauthenticated context if none is set
func GetClientContext(c *fiber.Ctx) ClientContext {
	if ctx := c.Locals(ContextKey); ctx != nil {
		if cc, ok := ctx.(ClientContext); ok {
			return cc
		}
	}
	return ClientContext{IsAuthenticated: false}
}

// IsAuthenticated checks if the current request carries a valid client key
func IsAuthenticated(c *fiber.Ctx) bool {
	return GetClientContext(c).IsAuthenticated
}

// GetClientID returns the current client's ID, or 0 if unauthenticated
func GetClientID(c *fiber.Ctx) uint {
	return GetClientContext(c).ClientID
}

// GetRole returns the current client's role, or empty string if unauthenticated
func GetRole(c *fiber.Ctx) string {
	return GetClientContext(c).Role
}

// HasRole checks if the current client acts in the given role
func HasRole(c *fiber.Ctx, role string) bool {
	cc := GetClientContext(c)
	return cc.IsAuthenticated && cc.Role == role
}
