package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/attestia/attestia/internal/twofactor"
)

// RegisterTwoFactorRoutes wires challenge, verification and authenticator
// management endpoints. The rate limiter only guards code dispatch.
func RegisterTwoFactorRoutes(r fiber.Router, h *twofactor.Handler, rateLimiter fiber.Handler) {
	r.Post("/twofactor/challenge", rateLimiter, h.RequestChallenge)
	r.Post("/twofactor/verify", h.Verify)
	r.Post("/twofactor/totp/setup", h.TOTPSetup)
	r.Post("/twofactor/totp/confirm", h.TOTPConfirm)
	r.Post("/twofactor/totp/disable", h.TOTPDisable)
}
