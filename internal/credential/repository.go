package credential

import (
	"context"
	"errors"
)

// ErrNotFound indicates no credential row exists for the signatory.
var ErrNotFound = errors.New("credential not found")

// Repository persists signing credentials. Save replaces the whole row;
// mutation of attempt counters goes through Update so the read-modify-write
// stays atomic per user.
type Repository interface {
	Save(ctx context.Context, cred Credential) error
	Find(ctx context.Context, userID string) (Credential, error)
	// Update applies fn to the stored credential under a per-user atomic
	// section and persists the result.
	Update(ctx context.Context, userID string, fn func(*Credential) error) (Credential, error)
}
