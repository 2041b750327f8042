package verifcode

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func testPayload() Payload {
	return Payload{
		ID:               "a2f1c7e0-9d4b-4c8e-8f12-3c5d6e7f8a90",
		Number:           "ATT-2026-00042",
		SubjectName:      "NGOMA",
		SubjectGivenName: "Pauline",
		SubjectBirthDate: "1998-03-14",
		IssuedAtEpochMs:  1767225600000,
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer, err := NewSigner(testKey(), "https://verify.example/att", 0)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	p := testPayload()
	sig := signer.Sign(p)

	ok, reason := signer.Verify(p, sig)
	if !ok {
		t.Fatalf("expected valid signature, got reason %q", reason)
	}
}

func TestVerifyRejectsEveryFlippedSignatureCharacter(t *testing.T) {
	signer, _ := NewSigner(testKey(), "https://verify.example/att", 0)
	p := testPayload()
	sig := signer.Sign(p)

	for i := 0; i < len(sig); i++ {
		flipped := []byte(sig)
		if flipped[i] == 'a' {
			flipped[i] = 'b'
		} else {
			flipped[i] = 'a'
		}
		if ok, _ := signer.Verify(p, string(flipped)); ok {
			t.Fatalf("signature accepted with character %d flipped", i)
		}
	}
}

func TestVerifyRejectsAnyMutatedField(t *testing.T) {
	signer, _ := NewSigner(testKey(), "https://verify.example/att", 0)
	p := testPayload()
	sig := signer.Sign(p)

	mutations := map[string]Payload{}

	m := p
	m.ID = "b2f1c7e0-9d4b-4c8e-8f12-3c5d6e7f8a90"
	mutations["id"] = m

	m = p
	m.Number = "ATT-2026-00043"
	mutations["number"] = m

	m = p
	m.SubjectName = "NGOMB"
	mutations["subject name"] = m

	m = p
	m.SubjectGivenName = "Paulina"
	mutations["given name"] = m

	m = p
	m.SubjectBirthDate = "1998-03-15"
	mutations["birth date"] = m

	m = p
	m.IssuedAtEpochMs++
	mutations["issued at"] = m

	for field, mutated := range mutations {
		if ok, _ := signer.Verify(mutated, sig); ok {
			t.Fatalf("signature accepted after mutating %s", field)
		}
	}
}

func TestVerifyExpiry(t *testing.T) {
	signer, _ := NewSigner(testKey(), "https://verify.example/att", 10*365*24*time.Hour)
	p := testPayload()
	sig := signer.Sign(p)

	signer.now = func() time.Time { return time.UnixMilli(p.IssuedAtEpochMs).Add(24 * time.Hour) }
	if ok, _ := signer.Verify(p, sig); !ok {
		t.Fatalf("fresh payload rejected")
	}

	signer.now = func() time.Time { return time.UnixMilli(p.IssuedAtEpochMs).Add(11 * 365 * 24 * time.Hour) }
	ok, reason := signer.Verify(p, sig)
	if ok {
		t.Fatalf("stale payload accepted")
	}
	if reason != ReasonExpired {
		t.Fatalf("expected reason %q, got %q", ReasonExpired, reason)
	}
}

func TestVerifyNoExpiryWhenMaxAgeZero(t *testing.T) {
	signer, _ := NewSigner(testKey(), "https://verify.example/att", 0)
	p := testPayload()
	sig := signer.Sign(p)

	signer.now = func() time.Time { return time.UnixMilli(p.IssuedAtEpochMs).Add(50 * 365 * 24 * time.Hour) }
	if ok, _ := signer.Verify(p, sig); !ok {
		t.Fatalf("age check should be disabled when max age is zero")
	}
}

func TestVerificationURLCarriesSignatureAndNumber(t *testing.T) {
	signer, _ := NewSigner(testKey(), "https://verify.example/att", 0)
	p := testPayload()

	raw := signer.VerificationURL(p)
	if !strings.HasPrefix(raw, "https://verify.example/att?") {
		t.Fatalf("unexpected url prefix: %s", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	if q.Get("number") != p.Number {
		t.Fatalf("number param missing, got %q", q.Get("number"))
	}
	if q.Get("sig") != signer.Sign(p) {
		t.Fatalf("sig param does not match signature")
	}
	if q.Get("issued") != "1767225600000" {
		t.Fatalf("issued param missing, got %q", q.Get("issued"))
	}
}

func TestQRImageSized(t *testing.T) {
	signer, _ := NewSigner(testKey(), "https://verify.example/att", 0)
	img, err := signer.QRImage(testPayload(), 200)
	if err != nil {
		t.Fatalf("qr image: %v", err)
	}
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 200 {
		t.Fatalf("expected 200x200, got %v", img.Bounds())
	}
}
