package middleware

import (
	"strings"
	"time"

	"digest_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTAuth validates HS256 bearer tokens and stores the authenticated user ID
// in c.Locals("user_id") as a uuid.UUID.
func JWTAuth(secret string) fiber.Handler {
	key := []byte(secret)

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		tokenString := extractToken(c)
		if tokenString == "" {
			return apperr.Unauthorized("missing authentication token")
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, apperr.Unauthorized("unexpected signing method")
			}
			return key, nil
		})
		if err != nil || !token.Valid {
			return apperr.Unauthorized("invalid or expired token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return apperr.Unauthorized("invalid token claims")
		}

		if exp, err := claims.GetExpirationTime(); err != nil || exp == nil || exp.Before(time.Now()) {
			return apperr.Unauthorized("token expired")
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			return apperr.Unauthorized("token missing subject")
		}

		userID, err := uuid.Parse(sub)
		if err != nil {
			return apperr.Unauthorized("invalid user ID in token")
		}

		c.Locals("user_id", userID)
		return c.Next()
	}
}

// extractToken reads the token from the Authorization header, falling back to
// the token query parameter for SSE and download links.
func extractToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.Query("token")
}
