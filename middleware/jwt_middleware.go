package middleware

import (
	"errors"
	"strings"

	"adveri/apperr"
	"adveri/models"
	"adveri/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const AccessTokenCookie = "access_token"

// Protected authenticates the caller from a Bearer header or the
// access_token cookie and stores the user in c.Locals("user").
func Protected(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var token string
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return apperr.Unauthorized("invalid authorization format")
			}
			token = tokenParts[1]
		} else {
			token = c.Cookies(AccessTokenCookie)
			if token == "" {
				return apperr.Unauthorized("authorization required")
			}
		}

		claims, err := utils.ParseJWTToken(token)
		if err != nil {
			return apperr.Unauthorized("invalid or expired token")
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).First(&user, claims.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Unauthorized("user not found")
			}
			return apperr.Internal("load caller", err)
		}

		if claims.TokenVersion != user.TokenVersion {
			return apperr.Unauthorized("token has been revoked")
		}
		if !user.CanSignIn() {
			return apperr.Unauthorized("sponsor application is not yet approved")
		}

		c.Locals("user", &user)
		c.Locals("userID", user.ID)
		c.Locals("tokenID", claims.ID)

		return c.Next()
	}
}

// RequireRole lets only the listed roles through. It must run after
// Protected.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil {
			return apperr.Unauthorized("authorization required")
		}
		for _, r := range roles {
			if user.Role == r {
				return c.Next()
			}
		}
		return apperr.Forbidden("insufficient permissions")
	}
}

// CurrentUser returns the authenticated caller, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals("user").(*models.User)
	return user
}
