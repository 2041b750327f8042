package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/attestia/attestia/internal/audit"
)

// Status enumerates PIN check outcomes.
type Status int

const (
	StatusValid Status = iota
	StatusInvalid
	StatusLocked
	StatusNotConfigured
	StatusDisabled
)

// Result carries the outcome of a PIN check. AttemptsLeft is only meaningful
// for StatusInvalid, RetryAfter only for StatusLocked.
type Result struct {
	Status       Status
	AttemptsLeft int
	RetryAfter   time.Duration
}

// errSkipWrite aborts a repository Update without persisting anything.
var errSkipWrite = errors.New("skip write")

// Service manages signing credentials and enforces the lockout state machine.
type Service struct {
	repo          Repository
	auditor       audit.Recorder
	maxAttempts   int
	lockoutWindow time.Duration
	bcryptCost    int
	now           func() time.Time
}

// NewService creates a credential service. maxAttempts and lockoutWindow
// bound the brute-force surface; zero values select the defaults (5, 15m).
func NewService(repo Repository, auditor audit.Recorder, maxAttempts int, lockoutWindow time.Duration) *Service {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if lockoutWindow <= 0 {
		lockoutWindow = 15 * time.Minute
	}
	return &Service{
		repo:          repo,
		auditor:       auditor,
		maxAttempts:   maxAttempts,
		lockoutWindow: lockoutWindow,
		bcryptCost:    bcrypt.DefaultCost,
		now:           time.Now,
	}
}

// SetCredential hashes the PIN and stores the signatory's signature asset and
// stamp box, resetting attempt counters. Existing two-factor material is
// preserved.
func (s *Service) SetCredential(ctx context.Context, userID, pin, signatureAsset string, stamp StampBox) error {
	if len(pin) < 4 {
		return fmt.Errorf("PIN must be at least 4 digits")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), s.bcryptCost)
	if err != nil {
		return err
	}

	cred, err := s.repo.Find(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		cred = Credential{UserID: userID, TwoFactorMethod: MethodEmail, Enabled: true}
	} else if err != nil {
		return err
	}

	cred.PINHash = hash
	cred.AttemptCount = 0
	cred.LockedUntil = time.Time{}
	cred.SignatureAsset = signatureAsset
	cred.StampX = stamp.X
	cred.StampY = stamp.Y
	cred.StampWidth = stamp.Width
	cred.StampHeight = stamp.Height

	return s.repo.Save(ctx, cred)
}

// CheckPIN validates the possession-factor PIN. The attempt-counter update
// and the lock decision happen inside one per-user atomic section so
// concurrent wrong submissions cannot slip past the lock threshold.
func (s *Service) CheckPIN(ctx context.Context, userID, pin string) (Result, error) {
	var res Result

	_, err := s.repo.Update(ctx, userID, func(c *Credential) error {
		now := s.now()

		if len(c.PINHash) == 0 {
			res = Result{Status: StatusNotConfigured}
			return errSkipWrite
		}
		if !c.Enabled {
			res = Result{Status: StatusDisabled}
			return errSkipWrite
		}
		if !c.LockedUntil.IsZero() {
			if now.Before(c.LockedUntil) {
				res = Result{Status: StatusLocked, RetryAfter: c.LockedUntil.Sub(now)}
				return errSkipWrite
			}
			// Lock expired: reset before judging the PIN itself.
			c.LockedUntil = time.Time{}
			c.AttemptCount = 0
		}

		if bcrypt.CompareHashAndPassword(c.PINHash, []byte(pin)) == nil {
			c.AttemptCount = 0
			c.LockedUntil = time.Time{}
			res = Result{Status: StatusValid}
			return nil
		}

		c.AttemptCount++
		if c.AttemptCount >= s.maxAttempts {
			c.LockedUntil = now.Add(s.lockoutWindow)
			res = Result{Status: StatusLocked, RetryAfter: s.lockoutWindow}
			s.auditor.Record(ctx, audit.Event{
				Action:  audit.ActionPINLocked,
				UserID:  userID,
				Details: fmt.Sprintf("locked for %s after %d failed attempts", s.lockoutWindow, c.AttemptCount),
			})
			return nil
		}

		res = Result{Status: StatusInvalid, AttemptsLeft: s.maxAttempts - c.AttemptCount}
		return nil
	})

	switch {
	case errors.Is(err, ErrNotFound):
		return Result{Status: StatusNotConfigured}, nil
	case errors.Is(err, errSkipWrite):
		return res, nil
	case err != nil:
		return Result{}, err
	}
	return res, nil
}

// Get returns the stored credential for a signatory.
func (s *Service) Get(ctx context.Context, userID string) (Credential, error) {
	return s.repo.Find(ctx, userID)
}
