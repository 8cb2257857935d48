package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"fieldengine/internal/config"
	"fieldengine/internal/engine"
)

// AuthHandler issues access tokens to configured API clients.
type AuthHandler struct {
	clients   map[string]config.ClientConfig
	jwtSecret string
	ttl       time.Duration
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(cfg config.AuthConfig, jwtSecret string) *AuthHandler {
	clients := make(map[string]config.ClientConfig, len(cfg.Clients))
	for _, cl := range cfg.Clients {
		clients[cl.ID] = cl
	}
	return &AuthHandler{
		clients:   clients,
		jwtSecret: jwtSecret,
		ttl:       time.Duration(cfg.TokenTTLMinutes) * time.Minute,
	}
}

// Token handles POST /api/auth/token.
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	var body struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.ClientID == "" || body.ClientSecret == "" {
		return engine.UnauthorizedError("client_id and client_secret are required")
	}

	client, ok := h.clients[body.ClientID]
	if !ok || !CheckSecret(body.ClientSecret, client.SecretHash) {
		return engine.UnauthorizedError("Invalid client credentials")
	}

	ttl := h.ttl
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	signed, err := GenerateAccessToken(client.ID, client.Roles, h.jwtSecret, ttl)
	if err != nil {
		return engine.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	return c.JSON(fiber.Map{"data": Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl / time.Second),
	}})
}

// RegisterAuthRoutes registers auth routes on the given Fiber app.
func RegisterAuthRoutes(app *fiber.App, h *AuthHandler) {
	auth := app.Group("/api/auth")
	auth.Post("/token", h.Token)
}
