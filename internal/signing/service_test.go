package signing

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/attestia/attestia/internal/audit"
	"github.com/attestia/attestia/internal/certificate"
	"github.com/attestia/attestia/internal/credential"
	"github.com/attestia/attestia/internal/document"
	"github.com/attestia/attestia/internal/logging"
	"github.com/attestia/attestia/internal/sequence"
	"github.com/attestia/attestia/internal/verifcode"
)

type fixture struct {
	signing *Service
	certs   certificate.Repository
	creds   *credential.Service
	issuer  *certificate.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.Discard()
	signer, err := verifcode.NewSigner(bytes.Repeat([]byte{0x5c}, 32), "https://verify.example.test/v", 0)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	renderer := document.NewRenderer(signer, document.NewFontResolver(""), logger)
	auditor := audit.NewLoggerRecorder(logger)

	certs := certificate.NewMemoryRepository()
	creds := credential.NewService(credential.NewMemoryRepository(), auditor, 3, 10*time.Minute)
	issuer := certificate.NewService(certs, sequence.NewAllocator(sequence.NewMemoryStore(), "ATT"),
		renderer, nil, auditor, logger, t.TempDir())

	return &fixture{
		signing: NewService(certs, creds, renderer, auditor, logger),
		certs:   certs,
		creds:   creds,
		issuer:  issuer,
	}
}

func writeSignatureAsset(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 16))
	for x := 0; x < 40; x++ {
		img.Set(x, 8, color.RGBA{R: 10, G: 10, B: 120, A: 255})
	}
	path := filepath.Join(t.TempDir(), "signature.png")
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode signature: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write signature: %v", err)
	}
	return path
}

func (f *fixture) enrol(t *testing.T, userID, pin string) {
	t.Helper()
	asset := writeSignatureAsset(t)
	err := f.creds.SetCredential(context.Background(), userID, pin, asset,
		credential.StampBox{X: 700, Y: 1200, Width: 240, Height: 90})
	if err != nil {
		t.Fatalf("set credential: %v", err)
	}
}

func (f *fixture) issue(t *testing.T) certificate.Certificate {
	t.Helper()
	cert, err := f.issuer.Issue(context.Background(), certificate.Subject{
		Name:         "MABIALA",
		GivenName:    "Destin",
		BirthDate:    "1991-07-04",
		ServiceStart: "2023-10-01",
		ServiceEnd:   "2025-09-30",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return cert
}

func TestSignOneStampsAndTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enrol(t, "sig-1", "123456")
	cert := f.issue(t)

	before, err := os.ReadFile(cert.RenderedPath)
	if err != nil {
		t.Fatalf("read document: %v", err)
	}

	signed, err := f.signing.SignOne(ctx, cert.ID, "sig-1", "123456")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if signed.Status != certificate.StatusSigned || signed.SignatoryID != "sig-1" {
		t.Fatalf("unexpected signed certificate: %+v", signed)
	}
	if signed.SignedAt.IsZero() {
		t.Fatalf("signed_at must be set")
	}

	after, err := os.ReadFile(cert.RenderedPath)
	if err != nil {
		t.Fatalf("read stamped document: %v", err)
	}
	if bytes.Equal(before, after) {
		t.Fatalf("stamping must change the rendered document")
	}
}

func TestSignOneRejectsWrongPIN(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enrol(t, "sig-1", "123456")
	cert := f.issue(t)

	_, err := f.signing.SignOne(ctx, cert.ID, "sig-1", "000000")
	if !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected ErrInvalidPIN, got %v", err)
	}
	var pinErr *PINError
	if !errors.As(err, &pinErr) || pinErr.AttemptsLeft != 2 {
		t.Fatalf("expected 2 attempts left, got %+v", pinErr)
	}

	stored, _ := f.certs.FindByID(ctx, cert.ID)
	if stored.Status != certificate.StatusGenerated {
		t.Fatalf("failed PIN must not sign the certificate")
	}
}

func TestSignOneLockoutEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enrol(t, "sig-1", "123456")
	cert := f.issue(t)

	for i := 0; i < 3; i++ {
		f.signing.SignOne(ctx, cert.ID, "sig-1", "999999")
	}

	_, err := f.signing.SignOne(ctx, cert.ID, "sig-1", "123456")
	if !errors.Is(err, ErrCredentialLocked) {
		t.Fatalf("correct PIN during lockout must be refused, got %v", err)
	}
	var pinErr *PINError
	if !errors.As(err, &pinErr) || pinErr.RetryAfter <= 0 {
		t.Fatalf("lockout must report retry delay, got %+v", pinErr)
	}
}

func TestSignOneRefusesDoubleSigning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enrol(t, "sig-1", "123456")
	f.enrol(t, "sig-2", "654321")
	cert := f.issue(t)

	first, err := f.signing.SignOne(ctx, cert.ID, "sig-1", "123456")
	if err != nil {
		t.Fatalf("first sign: %v", err)
	}

	_, err = f.signing.SignOne(ctx, cert.ID, "sig-2", "654321")
	if !errors.Is(err, certificate.ErrAlreadySigned) {
		t.Fatalf("expected ErrAlreadySigned, got %v", err)
	}

	stored, _ := f.certs.FindByID(ctx, cert.ID)
	if stored.SignatoryID != "sig-1" || !stored.SignedAt.Equal(first.SignedAt) {
		t.Fatalf("second attempt must not alter signing facts: %+v", stored)
	}
}

func TestSignOneWithoutCredential(t *testing.T) {
	f := newFixture(t)
	cert := f.issue(t)

	_, err := f.signing.SignOne(context.Background(), cert.ID, "sig-ghost", "123456")
	if !errors.Is(err, ErrCredentialUnavailable) {
		t.Fatalf("expected ErrCredentialUnavailable, got %v", err)
	}
}

func TestSignBatchIsBestEffort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enrol(t, "sig-1", "123456")

	good1 := f.issue(t)
	signedAlready := f.issue(t)
	good2 := f.issue(t)
	if _, err := f.signing.SignOne(ctx, signedAlready.ID, "sig-1", "123456"); err != nil {
		t.Fatalf("pre-sign: %v", err)
	}

	ids := []string{good1.ID, signedAlready.ID, "no-such-id", good2.ID}
	result, err := f.signing.SignBatch(ctx, ids, "sig-1", "123456")
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(result.Succeeded) != 2 {
		t.Fatalf("expected 2 successes, got %v", result.Succeeded)
	}
	if len(result.Failed) != 2 {
		t.Fatalf("expected 2 failures, got %v", result.Failed)
	}
	for _, id := range []string{good1.ID, good2.ID} {
		stored, _ := f.certs.FindByID(ctx, id)
		if stored.Status != certificate.StatusSigned {
			t.Fatalf("certificate %s should be signed", id)
		}
	}
}

func TestSignBatchChecksPINOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enrol(t, "sig-1", "123456")
	cert := f.issue(t)

	_, err := f.signing.SignBatch(ctx, []string{cert.ID}, "sig-1", "000000")
	if !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected ErrInvalidPIN, got %v", err)
	}
	stored, _ := f.certs.FindByID(ctx, cert.ID)
	if stored.Status != certificate.StatusGenerated {
		t.Fatalf("wrong PIN must fail the whole batch before signing")
	}
}
