package twofactor

import (
	"context"
	"sync"
	"time"
)

type memoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewMemoryChallengeStore builds an in-process challenge store with a
// periodic sweep of expired entries. Used when no durable store is
// configured, and by unit tests.
func NewMemoryChallengeStore(sweepEvery time.Duration) *memoryChallengeStore {
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	s := &memoryChallengeStore{
		challenges: make(map[string]Challenge),
		stop:       make(chan struct{}),
	}
	go s.sweep(sweepEvery)
	return s
}

func challengeKey(userID, action string) string {
	return userID + ":" + action
}

func (s *memoryChallengeStore) Put(_ context.Context, ch Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[challengeKey(ch.UserID, ch.Action)] = ch
	return nil
}

func (s *memoryChallengeStore) Get(_ context.Context, userID, action string) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[challengeKey(userID, action)]
	if !ok {
		return Challenge{}, ErrNoChallenge
	}
	return ch, nil
}

func (s *memoryChallengeStore) IncrementAttempts(_ context.Context, userID, action string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := challengeKey(userID, action)
	ch, ok := s.challenges[key]
	if !ok {
		return 0, ErrNoChallenge
	}
	ch.Attempts++
	s.challenges[key] = ch
	return ch.Attempts, nil
}

func (s *memoryChallengeStore) Delete(_ context.Context, userID, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, challengeKey(userID, action))
	return nil
}

// Close stops the sweep goroutine.
func (s *memoryChallengeStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *memoryChallengeStore) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, ch := range s.challenges {
				if now.After(ch.ExpiresAt) {
					delete(s.challenges, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
