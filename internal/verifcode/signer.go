package verifcode

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"
)

// Verification outcome reasons reported by Verify.
const (
	ReasonMismatch = "mismatch"
	ReasonExpired  = "expired"
)

// Signer produces and checks keyed signatures over certificate payloads.
// Verification never needs the issuer's database: the payload plus the
// signature are self-contained.
type Signer struct {
	key     []byte
	baseURL string
	maxAge  time.Duration
	now     func() time.Time
}

// NewSigner builds a signer with a 256-bit key. maxAge bounds the accepted
// payload age; zero disables the freshness check entirely, which is the
// default for long-lived legal documents.
func NewSigner(key []byte, baseURL string, maxAge time.Duration) (*Signer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("signing key must be 32 bytes, got %d", len(key))
	}
	return &Signer{key: key, baseURL: baseURL, maxAge: maxAge, now: time.Now}, nil
}

// Sign computes the hex HMAC-SHA256 signature over the payload's canonical string.
func (s *Signer) Sign(p Payload) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(p.CanonicalString()))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares in constant time. The reason
// is only populated when the result is false.
func (s *Signer) Verify(p Payload, signatureHex string) (bool, string) {
	if s.maxAge > 0 {
		issued := time.UnixMilli(p.IssuedAtEpochMs)
		if s.now().Sub(issued) > s.maxAge {
			return false, ReasonExpired
		}
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(p.CanonicalString()))
	want := mac.Sum(nil)

	got, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false, ReasonMismatch
	}
	if !hmac.Equal(want, got) {
		return false, ReasonMismatch
	}
	return true, ""
}

// VerificationURL builds the public verification link embedded in the
// document's QR code.
func (s *Signer) VerificationURL(p Payload) string {
	q := url.Values{}
	q.Set("number", p.Number)
	q.Set("sig", s.Sign(p))
	q.Set("issued", fmt.Sprintf("%d", p.IssuedAtEpochMs))
	return s.baseURL + "?" + q.Encode()
}
