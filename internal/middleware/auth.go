// Package middleware provides authentication, rate limiting, idempotency and request
// logging middleware for the application.
package middleware

import (
	"errors"
	"strings"
	"time"

	"creditflow/internal/config"
	"creditflow/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Fiber locals populated by the auth middleware.
const (
	LocalActor = "actor"
	LocalRole  = "role"
)

// Roles carried in the "role" claim.
const (
	RoleCashier = "cashier"
	RoleAdmin   = "admin"
)

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// ActorClaims is the token payload: the opaque actor name in "sub" plus its role.
type ActorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for actor with the given role.
func IssueToken(secret, actor, role string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(actor) == "" {
		return "", errors.New("actor is required")
	}
	if role != RoleCashier && role != RoleAdmin {
		return "", errors.New("role must be cashier or admin")
	}
	now := time.Now()
	claims := ActorClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  actor,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates tokenString and returns its claims.
func ParseToken(secret, tokenString string) (*ActorClaims, error) {
	claims := &ActorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("invalid token structure - missing subject")
	}
	if claims.Role != RoleCashier && claims.Role != RoleAdmin {
		return nil, errors.New("invalid token role")
	}
	return claims, nil
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("Authorization header required")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("Invalid authorization header format")
	}
	return parts[1], nil
}

func authenticate(c *fiber.Ctx, tokenString string) error {
	claims, err := ParseToken(cfg.JWTSecret, tokenString)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid or expired token"))
	}

	c.Locals(LocalActor, claims.Subject)
	c.Locals(LocalRole, claims.Role)
	return c.Next()
}

// AuthRequired is a middleware that enforces authentication for protected routes.
func AuthRequired(c *fiber.Ctx) error {
	token, err := bearerToken(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError(err.Error()))
	}
	return authenticate(c, token)
}

// WebSocketAuthRequired validates a token from the "token" query parameter, falling
// back to the Authorization header. Browsers cannot set headers on websocket upgrades.
func WebSocketAuthRequired(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		var err error
		token, err = bearerToken(c)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Token required"))
		}
	}
	return authenticate(c, token)
}

// AdminRequired must run after AuthRequired.
func AdminRequired(c *fiber.Ctx) error {
	if role, _ := c.Locals(LocalRole).(string); role != RoleAdmin {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("Admin access required"))
	}
	return c.Next()
}

// Actor returns the authenticated actor name, or "" outside authenticated routes.
func Actor(c *fiber.Ctx) string {
	actor, _ := c.Locals(LocalActor).(string)
	return actor
}
