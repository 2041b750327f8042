package certificate

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/attestia/attestia/internal/sequence"
)

// Handler exposes certificate HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a certificate HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type issueRequest struct {
	Subject Subject `json:"subject"`
}

type certificateResponse struct {
	ID           string `json:"id"`
	Number       string `json:"number"`
	Status       string `json:"status"`
	RenderedPath string `json:"rendered_path"`
	GeneratedAt  string `json:"generated_at"`
	SignedAt     string `json:"signed_at,omitempty"`
	SignatoryID  string `json:"signatory_id,omitempty"`
}

func toResponse(cert Certificate) certificateResponse {
	resp := certificateResponse{
		ID:           cert.ID,
		Number:       cert.Number,
		Status:       cert.Status,
		RenderedPath: cert.RenderedPath,
		GeneratedAt:  cert.GeneratedAt.Format(time.RFC3339),
	}
	if !cert.SignedAt.IsZero() {
		resp.SignedAt = cert.SignedAt.Format(time.RFC3339)
	}
	resp.SignatoryID = cert.SignatoryID
	return resp
}

// Issue generates a new certificate for the submitted subject.
func (h *Handler) Issue(c *fiber.Ctx) error {
	var req issueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	cert, err := h.service.Issue(c.UserContext(), req.Subject)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSubject):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, sequence.ErrStorageUnavailable):
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(cert))
}

// Get returns one certificate by identifier.
func (h *Handler) Get(c *fiber.Ctx) error {
	cert, err := h.service.Get(c.UserContext(), c.Params("certificateId"))
	if err != nil {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(cert))
}
