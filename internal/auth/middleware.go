package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"fieldengine/internal/engine"
	"fieldengine/internal/metadata"
)

// AuthMiddleware validates the client access token and sets the calling
// client as the UserContext of the request.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := bearerToken(c)
		if err != nil {
			return err
		}
		claims, err := ParseAccessToken(token, secret)
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		c.Locals("user", &metadata.UserContext{
			ID:      claims.Subject,
			Roles:   claims.Roles,
			TokenID: claims.ID,
		})
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) (string, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return "", engine.UnauthorizedError("Missing auth token")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", engine.UnauthorizedError("Invalid auth header format")
	}
	return strings.TrimSpace(token), nil
}

// RequireAdmin lets through clients holding the admin role, which
// definition authoring needs.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return engine.UnauthorizedError("Missing auth token")
		}
		if !user.IsAdmin() {
			return engine.ForbiddenError("Admin access required")
		}
		return c.Next()
	}
}

// RequireWriter guards value writes. Reads and the validate endpoint pass
// for any client; anything else needs the writer or admin role.
func RequireWriter() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}
		if strings.HasSuffix(c.Path(), "/custom-fields/validate") {
			return c.Next()
		}
		user := GetUser(c)
		if user == nil {
			return engine.UnauthorizedError("Missing auth token")
		}
		if !user.CanWrite() {
			return engine.ForbiddenError("Write access required")
		}
		return c.Next()
	}
}

// GetUser extracts the UserContext from a Fiber context.
func GetUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}
