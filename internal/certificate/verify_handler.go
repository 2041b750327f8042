package certificate

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/attestia/attestia/internal/audit"
	"github.com/attestia/attestia/internal/verifcode"
)

// VerifyHandler serves the public verification endpoint. It deliberately
// reports every failure as invalid: the scanner of a forged document learns
// nothing about which check tripped.
type VerifyHandler struct {
	service *Service
	signer  *verifcode.Signer
	auditor audit.Recorder
}

// NewVerifyHandler builds the public verification handler.
func NewVerifyHandler(service *Service, signer *verifcode.Signer, auditor audit.Recorder) *VerifyHandler {
	return &VerifyHandler{service: service, signer: signer, auditor: auditor}
}

type verifySubject struct {
	Name      string `json:"name"`
	GivenName string `json:"given_name"`
	BirthDate string `json:"birth_date"`
}

type verifyResponse struct {
	Valid   bool           `json:"valid"`
	Reason  string         `json:"reason,omitempty"`
	Subject *verifySubject `json:"subject,omitempty"`
}

// Verify checks a scanned code against the stored record.
func (h *VerifyHandler) Verify(c *fiber.Ctx) error {
	number := c.Query("number")
	sig := c.Query("sig")
	if number == "" || sig == "" {
		return fiber.NewError(http.StatusBadRequest, "number and sig are required")
	}

	cert, err := h.service.GetByNumber(c.UserContext(), number)
	if errors.Is(err, ErrNotFound) {
		return c.Status(http.StatusOK).JSON(verifyResponse{Valid: false, Reason: "invalid"})
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "verification unavailable")
	}

	ok, reason := h.signer.Verify(cert.Payload, sig)
	if !ok {
		if reason == verifcode.ReasonMismatch {
			h.auditor.Record(c.UserContext(), audit.Event{
				Action:  audit.ActionTamperDetected,
				UserID:  cert.ID,
				Details: "verification signature mismatch for " + cert.Number,
			})
		}
		// Expiry is the only reason worth distinguishing for the caller.
		if reason == verifcode.ReasonExpired {
			return c.Status(http.StatusOK).JSON(verifyResponse{Valid: false, Reason: "expired"})
		}
		return c.Status(http.StatusOK).JSON(verifyResponse{Valid: false, Reason: "invalid"})
	}

	return c.Status(http.StatusOK).JSON(verifyResponse{
		Valid: true,
		Subject: &verifySubject{
			Name:      cert.Payload.SubjectName,
			GivenName: cert.Payload.SubjectGivenName,
			BirthDate: cert.Payload.SubjectBirthDate,
		},
	})
}
