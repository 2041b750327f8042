package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/attestia/attestia/internal/signing"
)

// RegisterSigningRoutes wires the signing endpoints. Callers mount them
// behind the session middleware.
func RegisterSigningRoutes(r fiber.Router, h *signing.Handler) {
	r.Post("/certificates/:certificateId/sign", h.SignOne)
	r.Post("/certificates/sign-batch", h.SignBatch)
}
