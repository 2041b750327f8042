package twofactor

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/attestia/attestia/internal/audit"
	"github.com/attestia/attestia/internal/credential"
)

const (
	totpPeriod = 30 * time.Second
	totpSkew   = 1
)

var totpOpts = totp.ValidateOpts{
	Period:    uint(totpPeriod / time.Second),
	Skew:      0,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTPSetup is the unpersisted material returned by BeginTOTPSetup. Nothing
// is committed until the signatory proves possession via ConfirmTOTPSetup.
type TOTPSetup struct {
	Secret        string
	EnrollmentURI string
	BackupCodes   []string
}

// BeginTOTPSetup generates a fresh secret and single-use backup codes. The
// caller must echo them back to ConfirmTOTPSetup together with a first valid
// code before anything is stored.
func (a *Authority) BeginTOTPSetup(ctx context.Context, userID string) (TOTPSetup, error) {
	if _, err := a.creds.Find(ctx, userID); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return TOTPSetup{}, fmt.Errorf("signatory %s has no signing credential", userID)
		}
		return TOTPSetup{}, err
	}

	key, err := totp.Generate(totp.GenerateOpts{Issuer: a.issuer, AccountName: userID})
	if err != nil {
		return TOTPSetup{}, fmt.Errorf("generate totp secret: %w", err)
	}

	codes, err := generateBackupCodes(backupCodeCount)
	if err != nil {
		return TOTPSetup{}, err
	}

	return TOTPSetup{Secret: key.Secret(), EnrollmentURI: key.URL(), BackupCodes: codes}, nil
}

// ConfirmTOTPSetup verifies the first code against the unpersisted secret,
// then encrypts secret and backup codes at rest and flips the signatory to
// the time-based method.
func (a *Authority) ConfirmTOTPSetup(ctx context.Context, userID, secret, firstCode string, backupCodes []string) (Outcome, error) {
	step, ok := a.matchTOTPCode(secret, firstCode)
	if !ok {
		return Outcome{Reason: ReasonMismatch}, nil
	}

	secretEnc, err := a.box.Encrypt([]byte(secret))
	if err != nil {
		return Outcome{}, fmt.Errorf("encrypt totp secret: %w", err)
	}

	normalized := make([]string, len(backupCodes))
	for i, code := range backupCodes {
		normalized[i] = strings.ToUpper(strings.TrimSpace(code))
	}
	codesJSON, err := json.Marshal(normalized)
	if err != nil {
		return Outcome{}, err
	}
	codesEnc, err := a.box.Encrypt(codesJSON)
	if err != nil {
		return Outcome{}, fmt.Errorf("encrypt backup codes: %w", err)
	}

	_, err = a.creds.Update(ctx, userID, func(c *credential.Credential) error {
		c.TwoFactorMethod = credential.MethodTOTP
		c.TOTPSecretEnc = secretEnc
		c.BackupCodesEnc = codesEnc
		c.TOTPLastStep = step
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	a.auditor.Record(ctx, audit.Event{Action: audit.ActionTOTPEnabled, UserID: userID})
	return Outcome{Valid: true}, nil
}

// DisableTOTP requires a valid current code (time-based or backup) before
// reverting the signatory to the email method and discarding all secrets.
func (a *Authority) DisableTOTP(ctx context.Context, userID, code string) (Outcome, error) {
	cred, err := a.creds.Find(ctx, userID)
	if errors.Is(err, credential.ErrNotFound) {
		return Outcome{Reason: ReasonNotConfigured}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if cred.TwoFactorMethod != credential.MethodTOTP {
		return Outcome{Reason: ReasonNotConfigured}, nil
	}

	outcome, err := a.verifyTOTP(ctx, cred, code)
	if err != nil || !outcome.Valid {
		return outcome, err
	}

	_, err = a.creds.Update(ctx, userID, func(c *credential.Credential) error {
		c.TwoFactorMethod = credential.MethodEmail
		c.TOTPSecretEnc = nil
		c.BackupCodesEnc = nil
		c.TOTPLastStep = 0
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	a.auditor.Record(ctx, audit.Event{Action: audit.ActionTOTPDisabled, UserID: userID})
	return Outcome{Valid: true}, nil
}

// verifyTOTP checks the submitted value against the continuous code within
// the skew window, refusing replay of an already-used step, then falls back
// to the single-use backup codes.
func (a *Authority) verifyTOTP(ctx context.Context, cred credential.Credential, submittedCode string) (Outcome, error) {
	if len(cred.TOTPSecretEnc) == 0 {
		return Outcome{Reason: ReasonNotConfigured}, nil
	}

	secretBytes, err := a.box.Decrypt(cred.TOTPSecretEnc)
	if err != nil {
		return Outcome{}, fmt.Errorf("decrypt totp secret: %w", err)
	}

	if step, ok := a.matchTOTPCode(string(secretBytes), submittedCode); ok {
		replayed := false
		_, err := a.creds.Update(ctx, cred.UserID, func(c *credential.Credential) error {
			if step <= c.TOTPLastStep {
				replayed = true
				return nil
			}
			c.TOTPLastStep = step
			return nil
		})
		if err != nil {
			return Outcome{}, err
		}
		if replayed {
			return Outcome{Reason: ReasonMismatch}, nil
		}
		return Outcome{Valid: true}, nil
	}

	return a.consumeBackupCode(ctx, cred, submittedCode)
}

// matchTOTPCode compares the submitted code against the codes for the
// current step and its immediate neighbours, returning the matched step.
func (a *Authority) matchTOTPCode(secret, submittedCode string) (int64, bool) {
	now := a.now().UTC()
	for _, delta := range []int{0, -totpSkew, totpSkew} {
		at := now.Add(time.Duration(delta) * totpPeriod)
		expected, err := totp.GenerateCodeCustom(secret, at, totpOpts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(submittedCode)) == 1 {
			return at.Unix() / int64(totpPeriod/time.Second), true
		}
	}
	return 0, false
}

func (a *Authority) consumeBackupCode(ctx context.Context, cred credential.Credential, submittedCode string) (Outcome, error) {
	if len(cred.BackupCodesEnc) == 0 {
		return Outcome{Reason: ReasonMismatch}, nil
	}

	submitted := strings.ToUpper(strings.TrimSpace(submittedCode))
	matched := false

	_, err := a.creds.Update(ctx, cred.UserID, func(c *credential.Credential) error {
		codesJSON, err := a.box.Decrypt(c.BackupCodesEnc)
		if err != nil {
			return fmt.Errorf("decrypt backup codes: %w", err)
		}
		var codes []string
		if err := json.Unmarshal(codesJSON, &codes); err != nil {
			return err
		}

		for i, code := range codes {
			if subtle.ConstantTimeCompare([]byte(code), []byte(submitted)) == 1 {
				matched = true
				remaining := append(codes[:i], codes[i+1:]...)
				remainingJSON, err := json.Marshal(remaining)
				if err != nil {
					return err
				}
				enc, err := a.box.Encrypt(remainingJSON)
				if err != nil {
					return err
				}
				c.BackupCodesEnc = enc
				return nil
			}
		}
		return errSkipBackupWrite
	})
	if err != nil && !errors.Is(err, errSkipBackupWrite) {
		return Outcome{}, err
	}

	if !matched {
		return Outcome{Reason: ReasonMismatch}, nil
	}

	a.auditor.Record(ctx, audit.Event{Action: audit.ActionBackupCodeUsed, UserID: cred.UserID})
	return Outcome{Valid: true}, nil
}

var errSkipBackupWrite = errors.New("no backup code consumed")

const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateBackupCodes(n int) ([]string, error) {
	codes := make([]string, n)
	for i := range codes {
		var sb strings.Builder
		for j := 0; j < 8; j++ {
			if j == 4 {
				sb.WriteByte('-')
			}
			idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(backupCodeAlphabet))))
			if err != nil {
				return nil, err
			}
			sb.WriteByte(backupCodeAlphabet[idx.Int64()])
		}
		codes[i] = sb.String()
	}
	return codes, nil
}
