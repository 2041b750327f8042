package routes

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/attestia/attestia/internal/config"
	"github.com/attestia/attestia/internal/logging"
	"github.com/attestia/attestia/internal/twofactor"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		AppName:        "Attestia",
		AppEnv:         "test",
		Port:           "0",
		SigningKey:     bytes.Repeat([]byte{0x11}, 32),
		MasterSecret:   "routes-test-master-secret",
		VerifyBaseURL:  "https://verify.example.test/attestation",
		NumberPrefix:   "ATT",
		DocumentDir:    t.TempDir(),
		ChallengeTTL:   5 * time.Minute,
		SessionTTL:     15 * time.Minute,
		LockoutWindow:  15 * time.Minute,
		MaxPINAttempts: 5,
		ShutdownPeriod: time.Second,
	}
}

func newApp(t *testing.T) (*fiber.App, config.Config) {
	t.Helper()
	cfg := testConfig(t)
	app := fiber.New()
	if err := Setup(app, Deps{Cfg: cfg, Logger: logging.Discard()}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app, cfg
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) (int, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test %s: %v", path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if len(raw) > 0 {
		json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

func getJSON(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test %s: %v", path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if len(raw) > 0 {
		json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

func writeAsset(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 30, 12))
	for x := 0; x < 30; x++ {
		img.Set(x, 6, color.RGBA{B: 140, A: 255})
	}
	path := filepath.Join(t.TempDir(), "sig.png")
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

// sessionTokenFor mints the same compact token the two-factor authority
// issues after a successful check, so signing can be exercised without an
// out-of-band code in the loop.
func sessionTokenFor(t *testing.T, cfg config.Config, userID, action string) string {
	t.Helper()
	b64 := base64.RawURLEncoding
	header, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	now := time.Now()
	claims, _ := json.Marshal(map[string]any{
		"sub": userID,
		"act": action,
		"iat": now.Unix(),
		"exp": now.Add(cfg.SessionTTL).Unix(),
	})
	unsigned := b64.EncodeToString(header) + "." + b64.EncodeToString(claims)
	secret, err := twofactor.DeriveTokenSecret(cfg.MasterSecret)
	if err != nil {
		t.Fatalf("derive token secret: %v", err)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(unsigned))
	return unsigned + "." + b64.EncodeToString(mac.Sum(nil))
}

func issueOne(t *testing.T, app *fiber.App) map[string]any {
	t.Helper()
	status, body := postJSON(t, app, "/api/v1/certificates", map[string]any{
		"subject": map[string]string{
			"name":          "OKEMBA",
			"given_name":    "Prisca",
			"birth_date":    "1993-11-22",
			"service_start": "2023-01-15",
			"service_end":   "2025-01-14",
		},
	})
	if status != fiber.StatusCreated {
		t.Fatalf("issue returned %d: %v", status, body)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := newApp(t)
	status, _ := getJSON(t, app, "/healthz")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
}

func TestIssueAndFetchCertificate(t *testing.T) {
	app, _ := newApp(t)

	body := issueOne(t, app)
	number, _ := body["number"].(string)
	if !strings.HasPrefix(number, fmt.Sprintf("ATT-%d-", time.Now().Year())) {
		t.Fatalf("unexpected number %q", number)
	}
	if body["status"] != "generated" {
		t.Fatalf("expected generated status, got %v", body["status"])
	}

	id, _ := body["id"].(string)
	status, fetched := getJSON(t, app, "/api/v1/certificates/"+id)
	if status != fiber.StatusOK {
		t.Fatalf("fetch returned %d", status)
	}
	if fetched["number"] != number {
		t.Fatalf("fetch mismatch: %v", fetched)
	}

	status, _ = getJSON(t, app, "/api/v1/certificates/does-not-exist")
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", status)
	}
}

func TestIssueRejectsIncompleteSubject(t *testing.T) {
	app, _ := newApp(t)
	status, _ := postJSON(t, app, "/api/v1/certificates", map[string]any{
		"subject": map[string]string{"name": "OKEMBA"},
	})
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestVerifyEndpointRejectsForgeries(t *testing.T) {
	app, _ := newApp(t)
	cert := issueOne(t, app)
	number, _ := cert["number"].(string)

	status, body := getJSON(t, app, "/api/v1/verify?number="+number+"&sig="+strings.Repeat("ab", 32))
	if status != fiber.StatusOK {
		t.Fatalf("verify returned %d", status)
	}
	if body["valid"] != false || body["reason"] != "invalid" {
		t.Fatalf("forged signature must be invalid: %v", body)
	}

	status, body = getJSON(t, app, "/api/v1/verify?number=ATT-2026-99999&sig="+strings.Repeat("ab", 32))
	if status != fiber.StatusOK || body["valid"] != false {
		t.Fatalf("unknown number must be invalid: %d %v", status, body)
	}

	status, _ = getJSON(t, app, "/api/v1/verify?number="+number)
	if status != fiber.StatusBadRequest {
		t.Fatalf("missing sig must be a bad request, got %d", status)
	}
}

func TestSigningRequiresSessionToken(t *testing.T) {
	app, _ := newApp(t)
	cert := issueOne(t, app)
	id, _ := cert["id"].(string)

	status, _ := postJSON(t, app, "/api/v1/certificates/"+id+"/sign", map[string]string{"pin": "123456"})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without session token, got %d", status)
	}
}

func TestSigningFlowEndToEnd(t *testing.T) {
	app, cfg := newApp(t)

	status, _ := postJSON(t, app, "/api/v1/credentials", map[string]any{
		"user_id":         "sig-1",
		"pin":             "123456",
		"signature_asset": writeAsset(t),
		"stamp":           map[string]float64{"x": 700, "y": 1200, "width": 240, "height": 90},
	})
	if status != fiber.StatusNoContent {
		t.Fatalf("set credential returned %d", status)
	}

	cert := issueOne(t, app)
	id, _ := cert["id"].(string)
	token := sessionTokenFor(t, cfg, "sig-1", "sign")

	payload, _ := json.Marshal(map[string]string{"pin": "123456"})
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/certificates/"+id+"/sign", bytes.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("sign request: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("sign returned %d: %s", resp.StatusCode, raw)
	}
	var signed map[string]any
	json.Unmarshal(raw, &signed)
	if signed["status"] != "signed" || signed["signatory_id"] != "sig-1" {
		t.Fatalf("unexpected signing response: %v", signed)
	}

	// A second attempt must hit the forward-only transition.
	req = httptest.NewRequest(fiber.MethodPost, "/api/v1/certificates/"+id+"/sign", bytes.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("second sign request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("expected 409 on double signing, got %d", resp.StatusCode)
	}
}
