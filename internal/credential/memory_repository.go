package credential

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu    sync.Mutex
	creds map[string]Credential
}

// NewMemoryRepository builds an in-memory credential store for development
// mode and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{creds: make(map[string]Credential)}
}

func (r *memoryRepository) Save(_ context.Context, cred Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred.UpdatedAt = time.Now().UTC()
	r.creds[cred.UserID] = cred
	return nil
}

func (r *memoryRepository) Find(_ context.Context, userID string) (Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.creds[userID]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return cred, nil
}

func (r *memoryRepository) Update(_ context.Context, userID string, fn func(*Credential) error) (Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.creds[userID]
	if !ok {
		return Credential{}, ErrNotFound
	}
	if err := fn(&cred); err != nil {
		return Credential{}, err
	}
	cred.UpdatedAt = time.Now().UTC()
	r.creds[userID] = cred
	return cred, nil
}
