package twofactor

import (
	"context"
	"errors"
	"time"
)

// ErrNoChallenge indicates no live challenge exists for the (user, action) key.
var ErrNoChallenge = errors.New("no live challenge")

// Challenge is a single-use one-time code scoped to a signatory and action.
// Exactly one live challenge exists per (UserID, Action); creating a new one
// invalidates the previous.
type Challenge struct {
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}

// ChallengeStore persists live challenges. Put replaces any prior challenge
// under the same key; IncrementAttempts must be atomic per key.
type ChallengeStore interface {
	Put(ctx context.Context, ch Challenge) error
	Get(ctx context.Context, userID, action string) (Challenge, error)
	IncrementAttempts(ctx context.Context, userID, action string) (int, error)
	Delete(ctx context.Context, userID, action string) error
}
