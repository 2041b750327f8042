package certificate

import (
	"context"
	"errors"
	"sync"
	"time"
)

type memoryRepository struct {
	mu    sync.RWMutex
	certs map[string]Certificate
}

// NewMemoryRepository builds an in-memory certificate store for development
// mode and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{certs: make(map[string]Certificate)}
}

func (r *memoryRepository) Create(_ context.Context, cert Certificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.certs[cert.ID]; exists {
		return errors.New("certificate exists")
	}
	for _, existing := range r.certs {
		if existing.Number == cert.Number {
			return errors.New("certificate number already assigned")
		}
	}
	r.certs[cert.ID] = cert
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cert, ok := r.certs[id]
	if !ok {
		return Certificate{}, ErrNotFound
	}
	return cert, nil
}

func (r *memoryRepository) FindByNumber(_ context.Context, number string) (Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cert := range r.certs {
		if cert.Number == number {
			return cert, nil
		}
	}
	return Certificate{}, ErrNotFound
}

func (r *memoryRepository) MarkSigned(_ context.Context, id, signatoryID string, signedAt time.Time) (Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cert, ok := r.certs[id]
	if !ok {
		return Certificate{}, ErrNotFound
	}
	if cert.Status != StatusGenerated {
		return Certificate{}, ErrAlreadySigned
	}
	cert.Status = StatusSigned
	cert.SignatureKind = SignatureKindElectronic
	cert.SignedAt = signedAt.UTC()
	cert.SignatoryID = signatoryID
	r.certs[id] = cert
	return cert, nil
}
