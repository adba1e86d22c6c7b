package serverutils

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	LocalUserID = "user_id"
	LocalRole   = "role"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the fields the console's tokens carry.
type Claims struct {
	UserID string
	Role   string
}

// ParseToken validates an HMAC signed token and extracts its claims.
func ParseToken(tokenStr, secret string) (Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	userID, _ := mc["user_id"].(string)
	if userID == "" {
		return Claims{}, ErrInvalidToken
	}
	role, _ := mc["role"].(string)
	return Claims{UserID: userID, Role: role}, nil
}

// BearerToken reads "Authorization: Bearer <token>".
func BearerToken(ctx *fiber.Ctx) string {
	authHeader := ctx.Get("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return token
	}
	return ""
}

func NewJwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := BearerToken(ctx)
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token"})
		}

		claims, err := ParseToken(tokenStr, secret)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		ctx.Locals(LocalUserID, claims.UserID)
		ctx.Locals(LocalRole, claims.Role)
		return ctx.Next()
	}
}

// RequireRole must run after the JWT middleware.
func RequireRole(roles ...string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		role, _ := ctx.Locals(LocalRole).(string)
		for _, r := range roles {
			if r == role {
				return ctx.Next()
			}
		}
		return ctx.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}
}

// UserID returns the authenticated user set by the JWT middleware.
func UserID(ctx *fiber.Ctx) (string, bool) {
	id, ok := ctx.Locals(LocalUserID).(string)
	return id, ok && id != ""
}
