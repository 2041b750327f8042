package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/attestia/attestia/internal/audit"
	"github.com/attestia/attestia/internal/document"
	"github.com/attestia/attestia/internal/sequence"
	"github.com/attestia/attestia/internal/verifcode"
)

// ErrInvalidSubject indicates the applicant record is missing required data.
var ErrInvalidSubject = errors.New("invalid subject")

// Service runs the issuance pipeline: number allocation, payload signing,
// document rendering and persistence.
type Service struct {
	repo      Repository
	allocator *sequence.Allocator
	renderer  *document.Renderer
	template  *document.TemplateConfig
	auditor   audit.Recorder
	logger    *slog.Logger

	documentDir string

	now   func() time.Time
	newID func() string
}

// NewService builds the issuance service. template may be nil; the renderer
// then falls back to its built-in layout.
func NewService(
	repo Repository,
	allocator *sequence.Allocator,
	renderer *document.Renderer,
	template *document.TemplateConfig,
	auditor audit.Recorder,
	logger *slog.Logger,
	documentDir string,
) *Service {
	return &Service{
		repo:        repo,
		allocator:   allocator,
		renderer:    renderer,
		template:    template,
		auditor:     auditor,
		logger:      logger,
		documentDir: documentDir,
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
	}
}

// Issue allocates a number for the subject, renders the attestation document
// and persists the certificate in the generated state. The allocated number
// is committed before rendering, so a render failure burns the number rather
// than risking a duplicate.
func (s *Service) Issue(ctx context.Context, subject Subject) (Certificate, error) {
	if err := validateSubject(subject); err != nil {
		return Certificate{}, err
	}

	issuedAt := s.now().UTC()
	year := issuedAt.Year()

	n, err := s.allocator.Allocate(ctx, year)
	if err != nil {
		return Certificate{}, fmt.Errorf("allocate number: %w", err)
	}
	number := s.allocator.FormatNumber(year, n)

	cert := Certificate{
		ID:     s.newID(),
		Number: number,
		Payload: verifcode.Payload{
			Number:           number,
			SubjectName:      subject.Name,
			SubjectGivenName: subject.GivenName,
			SubjectBirthDate: subject.BirthDate,
			IssuedAtEpochMs:  issuedAt.UnixMilli(),
		},
		Status:      StatusGenerated,
		GeneratedAt: issuedAt,
	}
	cert.Payload.ID = cert.ID

	docPNG, err := s.renderer.Render(s.template, subjectValues(cert.Number, subject), cert.Payload, nil)
	if err != nil {
		return Certificate{}, fmt.Errorf("render document: %w", err)
	}

	cert.RenderedPath = filepath.Join(s.documentDir, cert.Number+".png")
	if err := os.MkdirAll(s.documentDir, 0o755); err != nil {
		return Certificate{}, fmt.Errorf("document directory: %w", err)
	}
	if err := os.WriteFile(cert.RenderedPath, docPNG, 0o644); err != nil {
		return Certificate{}, fmt.Errorf("write document: %w", err)
	}

	if err := s.repo.Create(ctx, cert); err != nil {
		// The document must not outlive a certificate that was never recorded.
		if rmErr := os.Remove(cert.RenderedPath); rmErr != nil {
			s.logger.Warn("remove document for unpersisted certificate", "path", cert.RenderedPath, "error", rmErr)
		}
		return Certificate{}, fmt.Errorf("persist certificate: %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		Action:  audit.ActionCertificateIssued,
		UserID:  cert.ID,
		Details: cert.Number,
		At:      issuedAt,
	})
	s.logger.Info("certificate issued", "id", cert.ID, "number", cert.Number)

	return cert, nil
}

// Get returns a certificate by identifier.
func (s *Service) Get(ctx context.Context, id string) (Certificate, error) {
	return s.repo.FindByID(ctx, id)
}

// GetByNumber returns a certificate by its printed number.
func (s *Service) GetByNumber(ctx context.Context, number string) (Certificate, error) {
	return s.repo.FindByNumber(ctx, number)
}

func validateSubject(subject Subject) error {
	switch {
	case subject.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidSubject)
	case subject.GivenName == "":
		return fmt.Errorf("%w: given_name is required", ErrInvalidSubject)
	case subject.BirthDate == "":
		return fmt.Errorf("%w: birth_date is required", ErrInvalidSubject)
	case subject.ServiceStart == "":
		return fmt.Errorf("%w: service_start is required", ErrInvalidSubject)
	case subject.ServiceEnd == "":
		return fmt.Errorf("%w: service_end is required", ErrInvalidSubject)
	}
	return nil
}

// subjectValues maps the applicant record onto template field identifiers.
func subjectValues(number string, subject Subject) map[string]string {
	return map[string]string{
		"title":              "ATTESTATION DE SERVICE",
		"number":             number,
		"subject_name":       subject.Name,
		"subject_given_name": subject.GivenName,
		"birth_date":         subject.BirthDate,
		"diploma":            subject.Diploma,
		"service_start":      subject.ServiceStart,
		"service_end":        subject.ServiceEnd,
		"promotion":          subject.Promotion,
		"service_location":   subject.ServiceLocation,
	}
}
