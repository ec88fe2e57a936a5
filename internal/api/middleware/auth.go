package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/domain"
)

const (
	// LocalClientID is the key to retrieve the authenticated client name from context
	LocalClientID = "client_id"
)

// Auth creates an authentication middleware using API Key. clients maps a
// client name to the SHA-256 hex hash of its key.
func Auth(clients map[string]string) fiber.Handler {
	byHash := make(map[string]string, len(clients))
	for name, hash := range clients {
		byHash[strings.ToLower(hash)] = name
	}

	return func(c *fiber.Ctx) error {
		// 1. Extract Bearer token
		apiKey := extractBearerToken(c)
		if apiKey == "" {
			return domain.ErrUnauthorized
		}

		// 2. Lookup client by key hash
		// Don't reveal whether the key exists or is malformed
		name, ok := byHash[domain.HashAPIKey(apiKey)]
		if !ok {
			return domain.ErrUnauthorized
		}

		// 3. Set client in context
		c.Locals(LocalClientID, name)

		return c.Next()
	}
}

// extractBearerToken extracts token from Authorization header
func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// GetClientID retrieves the authenticated client name from Fiber context
func GetClientID(c *fiber.Ctx) (string, error) {
	clientID, ok := c.Locals(LocalClientID).(string)
	if !ok || clientID == "" {
		return "", domain.ErrUnauthorized
	}
	return clientID, nil
}
