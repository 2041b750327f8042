package signing

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/attestia/attestia/internal/certificate"
	"github.com/attestia/attestia/internal/middleware"
)

// Handler exposes signing HTTP endpoints. Routes are mounted behind the
// two-factor session middleware, which puts the signatory identifier on the
// request context.
type Handler struct {
	service *Service
}

// NewHandler builds a signing HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type signRequest struct {
	PIN string `json:"pin"`
}

type batchRequest struct {
	CertificateIDs []string `json:"certificate_ids"`
	PIN            string   `json:"pin"`
}

type signedResponse struct {
	ID          string `json:"id"`
	Number      string `json:"number"`
	Status      string `json:"status"`
	SignedAt    string `json:"signed_at"`
	SignatoryID string `json:"signatory_id"`
}

// SignOne signs a single certificate for the authenticated signatory.
func (h *Handler) SignOne(c *fiber.Ctx) error {
	var req signRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	cert, err := h.service.SignOne(c.UserContext(), c.Params("certificateId"), middleware.UserID(c), req.PIN)
	if err != nil {
		return signingError(c, err)
	}
	return c.Status(http.StatusOK).JSON(signedResponse{
		ID:          cert.ID,
		Number:      cert.Number,
		Status:      cert.Status,
		SignedAt:    cert.SignedAt.Format(time.RFC3339),
		SignatoryID: cert.SignatoryID,
	})
}

// SignBatch signs several certificates with one PIN check. Partial failure is
// reported per certificate, not as a request error.
func (h *Handler) SignBatch(c *fiber.Ctx) error {
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if len(req.CertificateIDs) == 0 {
		return fiber.NewError(http.StatusBadRequest, "certificate_ids is required")
	}
	result, err := h.service.SignBatch(c.UserContext(), req.CertificateIDs, middleware.UserID(c), req.PIN)
	if err != nil {
		return signingError(c, err)
	}
	return c.Status(http.StatusOK).JSON(result)
}

func signingError(c *fiber.Ctx, err error) error {
	var pinErr *PINError
	if errors.As(err, &pinErr) {
		body := fiber.Map{"error": pinErr.Error()}
		switch {
		case errors.Is(err, ErrCredentialLocked):
			body["retry_after_seconds"] = int(pinErr.RetryAfter.Seconds())
			return c.Status(http.StatusLocked).JSON(body)
		case errors.Is(err, ErrInvalidPIN):
			body["attempts_left"] = pinErr.AttemptsLeft
			return c.Status(http.StatusUnauthorized).JSON(body)
		default:
			return c.Status(http.StatusForbidden).JSON(body)
		}
	}
	switch {
	case errors.Is(err, certificate.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, certificate.ErrAlreadySigned):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
