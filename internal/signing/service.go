package signing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fogleman/gg"

	"github.com/attestia/attestia/internal/audit"
	"github.com/attestia/attestia/internal/certificate"
	"github.com/attestia/attestia/internal/credential"
	"github.com/attestia/attestia/internal/document"
)

var (
	// ErrInvalidPIN indicates the submitted PIN did not match.
	ErrInvalidPIN = errors.New("invalid PIN")
	// ErrCredentialLocked indicates the signatory's credential is locked out.
	ErrCredentialLocked = errors.New("credential locked")
	// ErrCredentialUnavailable indicates the signatory has no usable
	// credential (never configured or administratively disabled).
	ErrCredentialUnavailable = errors.New("credential unavailable")
	// ErrSignatureAsset indicates the signatory's signature image cannot be
	// loaded.
	ErrSignatureAsset = errors.New("signature asset unavailable")
)

// PINError wraps a failed PIN check with the remaining-attempt and retry
// information callers surface to the signatory.
type PINError struct {
	Err          error
	AttemptsLeft int
	RetryAfter   time.Duration
}

func (e *PINError) Error() string { return e.Err.Error() }

// Unwrap exposes the sentinel for errors.Is.
func (e *PINError) Unwrap() error { return e.Err }

// BatchFailure records why one certificate in a batch was not signed.
type BatchFailure struct {
	CertificateID string `json:"certificate_id"`
	Reason        string `json:"reason"`
}

// BatchResult is the per-certificate outcome of a batch signing run.
type BatchResult struct {
	Succeeded []string       `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}

// Service orchestrates certificate signing: PIN check, signature stamping and
// the forward-only status transition.
type Service struct {
	certs    certificate.Repository
	creds    *credential.Service
	renderer *document.Renderer
	auditor  audit.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds the signing orchestrator.
func NewService(
	certs certificate.Repository,
	creds *credential.Service,
	renderer *document.Renderer,
	auditor audit.Recorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		certs:    certs,
		creds:    creds,
		renderer: renderer,
		auditor:  auditor,
		logger:   logger,
		now:      time.Now,
	}
}

// SignOne validates the signatory's PIN and signs a single certificate.
func (s *Service) SignOne(ctx context.Context, certID, userID, pin string) (certificate.Certificate, error) {
	if err := s.checkPIN(ctx, userID, pin); err != nil {
		return certificate.Certificate{}, err
	}
	return s.sign(ctx, certID, userID)
}

// SignBatch validates the PIN once and then signs each certificate
// independently. One certificate failing does not abort the rest; the result
// carries the per-certificate outcomes.
func (s *Service) SignBatch(ctx context.Context, certIDs []string, userID, pin string) (BatchResult, error) {
	if err := s.checkPIN(ctx, userID, pin); err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	for _, certID := range certIDs {
		if _, err := s.sign(ctx, certID, userID); err != nil {
			result.Failed = append(result.Failed, BatchFailure{CertificateID: certID, Reason: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, certID)
	}
	return result, nil
}

// checkPIN maps the credential state machine onto signing errors.
func (s *Service) checkPIN(ctx context.Context, userID, pin string) error {
	res, err := s.creds.CheckPIN(ctx, userID, pin)
	if err != nil {
		return fmt.Errorf("check PIN: %w", err)
	}
	switch res.Status {
	case credential.StatusValid:
		return nil
	case credential.StatusLocked:
		return &PINError{Err: ErrCredentialLocked, RetryAfter: res.RetryAfter}
	case credential.StatusInvalid:
		return &PINError{Err: ErrInvalidPIN, AttemptsLeft: res.AttemptsLeft}
	default:
		return &PINError{Err: ErrCredentialUnavailable}
	}
}

// sign stamps the signatory's signature onto the rendered document and moves
// the certificate to the signed state. The document write happens before the
// status transition; MarkSigned is the commit point.
func (s *Service) sign(ctx context.Context, certID, userID string) (certificate.Certificate, error) {
	cert, err := s.certs.FindByID(ctx, certID)
	if err != nil {
		return certificate.Certificate{}, err
	}
	if cert.Status != certificate.StatusGenerated {
		return certificate.Certificate{}, certificate.ErrAlreadySigned
	}

	cred, err := s.creds.Get(ctx, userID)
	if err != nil {
		return certificate.Certificate{}, fmt.Errorf("%w: %v", ErrSignatureAsset, err)
	}
	if cred.SignatureAsset == "" {
		return certificate.Certificate{}, fmt.Errorf("%w: no signature image configured", ErrSignatureAsset)
	}
	sig, err := gg.LoadImage(cred.SignatureAsset)
	if err != nil {
		return certificate.Certificate{}, fmt.Errorf("%w: %v", ErrSignatureAsset, err)
	}

	docPNG, err := os.ReadFile(cert.RenderedPath)
	if err != nil {
		return certificate.Certificate{}, fmt.Errorf("read document: %w", err)
	}
	stamped, err := s.renderer.StampSignature(docPNG, sig, cred.StampX, cred.StampY, cred.StampWidth, cred.StampHeight)
	if err != nil {
		return certificate.Certificate{}, fmt.Errorf("stamp signature: %w", err)
	}
	if err := os.WriteFile(cert.RenderedPath, stamped, 0o644); err != nil {
		return certificate.Certificate{}, fmt.Errorf("write document: %w", err)
	}

	signed, err := s.certs.MarkSigned(ctx, certID, userID, s.now().UTC())
	if err != nil {
		return certificate.Certificate{}, err
	}

	s.auditor.Record(ctx, audit.Event{
		Action:  audit.ActionCertificateSigned,
		UserID:  userID,
		Details: signed.Number,
		At:      signed.SignedAt,
	})
	s.logger.Info("certificate signed", "id", signed.ID, "number", signed.Number, "signatory", userID)

	return signed, nil
}
