package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Actor is the identity attributed to a request: the session user, or
// an API-key caller with no session.
type Actor struct {
	UserID    string
	ViaAPIKey bool
}

// ActorFromCtx reads the identity set by the middleware below.
func ActorFromCtx(c *fiber.Ctx) Actor {
	uid, _ := c.Locals("user_id").(string)
	via, _ := c.Locals("via_api_key").(bool)
	return Actor{UserID: uid, ViaAPIKey: via}
}

// Session validates bearer tokens and stores user_id in locals.
func Session(secret string) fiber.Handler {
	secretBytes := []byte(secret)
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get("Authorization"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		userID, err := userIDFromToken(token, secretBytes)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		c.Locals("user_id", userID)
		return c.Next()
	}
}

// SessionOrAPIKey accepts either a valid session or the service API
// key in the x-api-key header. API-key requests carry no user id.
func SessionOrAPIKey(secret, apiKey string) fiber.Handler {
	secretBytes := []byte(secret)
	return func(c *fiber.Ctx) error {
		if key := c.Get("x-api-key"); apiKey != "" && key == apiKey {
			c.Locals("via_api_key", true)
			return c.Next()
		}

		token := bearerFromHeader(c.Get("Authorization"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing api key or bearer token")
		}

		userID, err := userIDFromToken(token, secretBytes)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		c.Locals("user_id", userID)
		return c.Next()
	}
}

// APIKeyOnly rejects everything but the service API key. Session
// holders cannot pass.
func APIKeyOnly(apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if apiKey == "" || c.Get("x-api-key") != apiKey {
			return fiber.NewError(fiber.StatusUnauthorized, "api key required")
		}
		c.Locals("via_api_key", true)
		return c.Next()
	}
}

var parseMiddlewareClaimsFn = jwt.ParseWithClaims

func userIDFromToken(token string, secret []byte) (string, error) {
	parsed, err := parseMiddlewareClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", fiber.NewError(fiber.StatusUnauthorized, "token invalid")
	}
	return claims.UserID, nil
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
