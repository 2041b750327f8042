package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/attestia/attestia/internal/certificate"
)

// RegisterCertificateRoutes wires issuance and lookup endpoints. The extra
// middlewares only guard the unsafe issuance route.
func RegisterCertificateRoutes(r fiber.Router, h *certificate.Handler, issuanceGuards ...fiber.Handler) {
	handlers := append(issuanceGuards, h.Issue)
	r.Post("/certificates", handlers...)
	r.Get("/certificates/:certificateId", h.Get)
}
