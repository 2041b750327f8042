package twofactor

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/attestia/attestia/internal/audit"
	"github.com/attestia/attestia/internal/credential"
	"github.com/attestia/attestia/internal/notification"
)

// Denial reasons reported in Outcome. They stay coarse on purpose: nothing
// here should help an attacker narrow down the blocking factor.
const (
	ReasonNoChallenge   = "no_challenge"
	ReasonExpired       = "expired"
	ReasonExhausted     = "attempts_exhausted"
	ReasonMismatch      = "mismatch"
	ReasonNotConfigured = "not_configured"
)

const (
	challengeCodeLength  = 6
	maxChallengeAttempts = 3
	backupCodeCount      = 10
)

// Outcome reports a verification result. AttemptsLeft is only meaningful for
// a live email challenge after a mismatch.
type Outcome struct {
	Valid        bool
	Reason       string
	AttemptsLeft int
}

// AuthorityConfig carries the tunables for the two-factor authority.
type AuthorityConfig struct {
	TokenSecret  []byte
	ChallengeTTL time.Duration
	SessionTTL   time.Duration
	Issuer       string
}

// Authority issues and validates one-time codes, continuous time-based codes
// and their single-use backups, and bridges a confirmed factor into a
// short-lived action-scoped session token.
type Authority struct {
	creds        credential.Repository
	store        ChallengeStore
	notifier     notification.Notifier
	box          *SecretBox
	auditor      audit.Recorder
	tokenSecret  []byte
	challengeTTL time.Duration
	sessionTTL   time.Duration
	issuer       string
	now          func() time.Time
}

// NewAuthority wires the two-factor authority.
func NewAuthority(creds credential.Repository, store ChallengeStore, notifier notification.Notifier, box *SecretBox, auditor audit.Recorder, cfg AuthorityConfig) (*Authority, error) {
	if len(cfg.TokenSecret) == 0 {
		return nil, fmt.Errorf("token secret is required")
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 15 * time.Minute
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "Attestia"
	}
	return &Authority{
		creds:        creds,
		store:        store,
		notifier:     notifier,
		box:          box,
		auditor:      auditor,
		tokenSecret:  cfg.TokenSecret,
		challengeTTL: cfg.ChallengeTTL,
		sessionTTL:   cfg.SessionTTL,
		issuer:       cfg.Issuer,
		now:          time.Now,
	}, nil
}

// ChallengeHandle is what callers learn about a created challenge. The code
// itself only travels out-of-band.
type ChallengeHandle struct {
	Action    string
	ExpiresAt time.Time
}

// RequestChallenge creates and dispatches a numeric one-time code for the
// email strategy. Any prior challenge under the same (user, action) key is
// invalidated.
func (a *Authority) RequestChallenge(ctx context.Context, userID, action, destination string) (ChallengeHandle, error) {
	code, err := randomDigits(challengeCodeLength)
	if err != nil {
		return ChallengeHandle{}, err
	}

	ch := Challenge{
		UserID:    userID,
		Action:    action,
		Code:      code,
		ExpiresAt: a.now().Add(a.challengeTTL),
	}
	if err := a.store.Put(ctx, ch); err != nil {
		return ChallengeHandle{}, fmt.Errorf("store challenge: %w", err)
	}

	if err := a.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindOneTimeCode,
		Destination: destination,
		Body:        fmt.Sprintf("Your %s confirmation code is %s. It expires in %d minutes.", a.issuer, code, int(a.challengeTTL.Minutes())),
	}); err != nil {
		return ChallengeHandle{}, fmt.Errorf("dispatch code: %w", err)
	}

	return ChallengeHandle{Action: action, ExpiresAt: ch.ExpiresAt}, nil
}

// Verify checks a submitted code using the strategy configured for the
// signatory: a live email challenge, or the continuous time-based code with
// its single-use backups.
func (a *Authority) Verify(ctx context.Context, userID, action, submittedCode string) (Outcome, error) {
	cred, err := a.creds.Find(ctx, userID)
	if errors.Is(err, credential.ErrNotFound) {
		return Outcome{Reason: ReasonNotConfigured}, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	switch cred.TwoFactorMethod {
	case credential.MethodTOTP:
		return a.verifyTOTP(ctx, cred, submittedCode)
	default:
		return a.verifyEmailChallenge(ctx, userID, action, submittedCode)
	}
}

func (a *Authority) verifyEmailChallenge(ctx context.Context, userID, action, submittedCode string) (Outcome, error) {
	ch, err := a.store.Get(ctx, userID, action)
	if errors.Is(err, ErrNoChallenge) {
		return Outcome{Reason: ReasonNoChallenge}, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	if a.now().After(ch.ExpiresAt) {
		_ = a.store.Delete(ctx, userID, action)
		return Outcome{Reason: ReasonExpired}, nil
	}
	if ch.Attempts >= maxChallengeAttempts {
		_ = a.store.Delete(ctx, userID, action)
		return Outcome{Reason: ReasonExhausted}, nil
	}

	if subtle.ConstantTimeCompare([]byte(ch.Code), []byte(submittedCode)) != 1 {
		attempts, err := a.store.IncrementAttempts(ctx, userID, action)
		if err != nil && !errors.Is(err, ErrNoChallenge) {
			return Outcome{}, err
		}
		if attempts >= maxChallengeAttempts {
			_ = a.store.Delete(ctx, userID, action)
			return Outcome{Reason: ReasonExhausted}, nil
		}
		return Outcome{Reason: ReasonMismatch, AttemptsLeft: maxChallengeAttempts - attempts}, nil
	}

	// Single use: a matched challenge is gone.
	if err := a.store.Delete(ctx, userID, action); err != nil {
		return Outcome{}, err
	}
	return Outcome{Valid: true}, nil
}

func randomDigits(n int) (string, error) {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "%d", d.Int64())
	}
	return sb.String(), nil
}
