package credential

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the credential enrolment endpoint.
type Handler struct {
	service *Service
}

// NewHandler builds a credential HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type setRequest struct {
	UserID         string   `json:"user_id"`
	PIN            string   `json:"pin"`
	SignatureAsset string   `json:"signature_asset"`
	Stamp          StampBox `json:"stamp"`
}

// Set stores the signatory's PIN, signature image path and stamp box.
func (h *Handler) Set(c *fiber.Ctx) error {
	var req setRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" {
		return fiber.NewError(http.StatusBadRequest, "user_id is required")
	}
	if err := h.service.SetCredential(c.UserContext(), req.UserID, req.PIN, req.SignatureAsset, req.Stamp); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.SendStatus(http.StatusNoContent)
}
