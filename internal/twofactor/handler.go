package twofactor

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// ActionSign is the only action the HTTP surface currently bridges into a
// session token.
const ActionSign = "sign"

// Handler exposes two-factor HTTP endpoints.
type Handler struct {
	authority  *Authority
	sessionTTL time.Duration
}

// NewHandler builds the two-factor HTTP handler.
func NewHandler(authority *Authority) *Handler {
	return &Handler{authority: authority, sessionTTL: authority.sessionTTL}
}

type challengeRequest struct {
	UserID      string `json:"user_id"`
	Destination string `json:"destination"`
}

// RequestChallenge creates and dispatches a one-time code for signing.
func (h *Handler) RequestChallenge(c *fiber.Ctx) error {
	var req challengeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" || req.Destination == "" {
		return fiber.NewError(http.StatusBadRequest, "user_id and destination are required")
	}
	handle, err := h.authority.RequestChallenge(c.UserContext(), req.UserID, ActionSign, req.Destination)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"action":     handle.Action,
		"expires_at": handle.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type verifyRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

// Verify checks a submitted code and, on success, issues the session token
// that opens the signing surface.
func (h *Handler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" || req.Code == "" {
		return fiber.NewError(http.StatusBadRequest, "user_id and code are required")
	}

	outcome, err := h.authority.Verify(c.UserContext(), req.UserID, ActionSign, req.Code)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	if !outcome.Valid {
		body := fiber.Map{"valid": false, "reason": outcome.Reason}
		if outcome.AttemptsLeft > 0 {
			body["attempts_left"] = outcome.AttemptsLeft
		}
		return c.Status(http.StatusUnauthorized).JSON(body)
	}

	token, err := h.authority.IssueSessionToken(req.UserID, ActionSign)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"valid":              true,
		"session_token":      token,
		"expires_in_seconds": int(h.sessionTTL.Seconds()),
	})
}

type totpSetupRequest struct {
	UserID string `json:"user_id"`
}

// TOTPSetup generates a fresh secret and backup codes. Nothing is activated
// until the first code is confirmed.
func (h *Handler) TOTPSetup(c *fiber.Ctx) error {
	var req totpSetupRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" {
		return fiber.NewError(http.StatusBadRequest, "user_id is required")
	}
	setup, err := h.authority.BeginTOTPSetup(c.UserContext(), req.UserID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"secret":         setup.Secret,
		"enrollment_uri": setup.EnrollmentURI,
		"backup_codes":   setup.BackupCodes,
	})
}

type totpConfirmRequest struct {
	UserID      string   `json:"user_id"`
	Secret      string   `json:"secret"`
	Code        string   `json:"code"`
	BackupCodes []string `json:"backup_codes"`
}

// TOTPConfirm activates the authenticator after the signatory proves they
// enrolled the secret.
func (h *Handler) TOTPConfirm(c *fiber.Ctx) error {
	var req totpConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	outcome, err := h.authority.ConfirmTOTPSetup(c.UserContext(), req.UserID, req.Secret, req.Code, req.BackupCodes)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if !outcome.Valid {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"valid": false, "reason": outcome.Reason})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"valid": true})
}

type totpDisableRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

// TOTPDisable reverts the signatory to the email strategy. A valid current
// or backup code is required.
func (h *Handler) TOTPDisable(c *fiber.Ctx) error {
	var req totpDisableRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	outcome, err := h.authority.DisableTOTP(c.UserContext(), req.UserID, req.Code)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if !outcome.Valid {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"valid": false, "reason": outcome.Reason})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"valid": true})
}
