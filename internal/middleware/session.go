package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/attestia/attestia/internal/twofactor"
)

const userIDLocal = "user_id"

// Session returns a middleware that admits only requests carrying a session
// token issued for the given action by a completed two-factor check.
func Session(authority *twofactor.Authority, action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])

		token, err := authority.VerifySessionToken(tokenStr, action)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}

		c.Locals(userIDLocal, token.UserID)
		return c.Next()
	}
}

// UserID returns the signatory identifier placed on the request by Session.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDLocal).(string)
	return id
}
