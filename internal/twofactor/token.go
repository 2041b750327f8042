package twofactor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

var b64 = base64.RawURLEncoding

// tokenKeySalt is the fixed HKDF salt for the session-token signing key. The
// derived key is distinct from the secret-box key and from the document
// signing key; a token can never double as anything else.
const tokenKeySalt = "attestia/twofactor/token/v1"

// DeriveTokenSecret derives the session-token signing key from the
// application master secret.
func DeriveTokenSecret(masterSecret string) ([]byte, error) {
	if masterSecret == "" {
		return nil, fmt.Errorf("master secret is required")
	}
	r := hkdf.New(sha256.New, []byte(masterSecret), []byte(tokenKeySalt), nil)
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	return key, nil
}

// signHS256 creates a compact token string using HS256.
func signHS256(claims map[string]any, secret []byte) (string, error) {
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	h, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	c, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	unsigned := b64.EncodeToString(h) + "." + b64.EncodeToString(c)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(unsigned))
	sig := mac.Sum(nil)
	return unsigned + "." + b64.EncodeToString(sig), nil
}

// parseAndVerifyHS256 verifies token signature and returns claims.
func parseAndVerifyHS256(token string, secret []byte) (map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.New("invalid token format")
	}
	unsigned := parts[0] + "." + parts[1]
	sigBytes, err := b64.DecodeString(parts[2])
	if err != nil {
		return nil, errors.New("invalid signature encoding")
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(unsigned))
	if !hmac.Equal(sigBytes, mac.Sum(nil)) {
		return nil, errors.New("signature mismatch")
	}
	payload, err := b64.DecodeString(parts[1])
	if err != nil {
		return nil, errors.New("invalid payload encoding")
	}
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, errors.New("invalid claims json")
	}
	return claims, nil
}

// SessionToken is the parsed, verified proof that a two-factor check already
// succeeded for a specific action.
type SessionToken struct {
	UserID string
	Action string
}

// IssueSessionToken produces a signed, time-boxed credential bound to one action.
func (a *Authority) IssueSessionToken(userID, action string) (string, error) {
	now := a.now()
	claims := map[string]any{
		"sub": userID,
		"act": action,
		"iat": now.Unix(),
		"exp": now.Add(a.sessionTTL).Unix(),
	}
	return signHS256(claims, a.tokenSecret)
}

// VerifySessionToken checks the embedded signature, the expiry, and that the
// token was issued for exactly the expected action.
func (a *Authority) VerifySessionToken(token, expectedAction string) (SessionToken, error) {
	claims, err := parseAndVerifyHS256(token, a.tokenSecret)
	if err != nil {
		return SessionToken{}, errors.New("invalid session token")
	}

	expFloat, _ := claims["exp"].(float64)
	if expFloat == 0 || a.now().After(time.Unix(int64(expFloat), 0)) {
		return SessionToken{}, errors.New("session token expired")
	}

	action, _ := claims["act"].(string)
	if action != expectedAction {
		return SessionToken{}, errors.New("session token action mismatch")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return SessionToken{}, errors.New("session token missing subject")
	}

	return SessionToken{UserID: sub, Action: action}, nil
}
