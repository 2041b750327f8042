package certificate

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the certificate does not exist.
	ErrNotFound = errors.New("certificate not found")
	// ErrAlreadySigned indicates a signing attempt on a certificate that has
	// already left the generated state.
	ErrAlreadySigned = errors.New("certificate already signed")
)

// Repository persists certificates.
type Repository interface {
	Create(ctx context.Context, cert Certificate) error
	FindByID(ctx context.Context, id string) (Certificate, error)
	FindByNumber(ctx context.Context, number string) (Certificate, error)
	// MarkSigned transitions the certificate forward to signed. It fails with
	// ErrAlreadySigned when the certificate is not in the generated state,
	// leaving the stored row untouched.
	MarkSigned(ctx context.Context, id, signatoryID string, signedAt time.Time) (Certificate, error)
}
