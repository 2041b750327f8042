package audit

import (
	"context"
	"log/slog"
	"time"
)

// Actions recorded on the audit trail.
const (
	ActionCertificateIssued = "certificate_issued"
	ActionCertificateSigned = "certificate_signed"
	ActionTamperDetected    = "tamper_detected"
	ActionTOTPEnabled       = "totp_enabled"
	ActionTOTPDisabled      = "totp_disabled"
	ActionBackupCodeUsed    = "backup_code_used"
	ActionPINLocked         = "pin_locked"
)

// Event describes a single audit-trail entry.
type Event struct {
	Action  string
	UserID  string
	Details string
	At      time.Time
}

// Recorder appends events to the audit trail. Implementations must never let
// a recording failure block the operation being described.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// LoggerRecorder writes audit events to the structured logger. The real
// archival trail is an external collaborator; this implementation is the
// in-process default and the operator-visible surface for trail outages.
type LoggerRecorder struct {
	logger *slog.Logger
}

// NewLoggerRecorder constructs a logging audit recorder.
func NewLoggerRecorder(logger *slog.Logger) *LoggerRecorder {
	return &LoggerRecorder{logger: logger}
}

// Record writes the event to the structured logger.
func (r *LoggerRecorder) Record(_ context.Context, event Event) {
	if r == nil || r.logger == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	r.logger.Info("audit",
		"action", event.Action,
		"user_id", event.UserID,
		"details", event.Details,
		"timestamp", event.At.Format(time.RFC3339),
	)
}
