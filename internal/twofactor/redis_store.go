package twofactor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengePrefix = "twofactor:challenge:v1:"

// RedisChallengeStore keeps live challenges in Redis with native per-key
// expiry, so challenges survive process restarts and sweep themselves.
type RedisChallengeStore struct {
	client *redis.Client
}

// NewRedisChallengeStore builds the durable challenge store.
func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

func (s *RedisChallengeStore) key(userID, action string) string {
	return challengePrefix + userID + ":" + action
}

// Put replaces any prior challenge under the key; the Redis TTL mirrors the
// challenge expiry.
func (s *RedisChallengeStore) Put(ctx context.Context, ch Challenge) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	ttl := time.Until(ch.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	key := s.key(ch.UserID, ch.Action)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, payload, ttl)
	pipe.Del(ctx, key+":attempts")
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisChallengeStore) Get(ctx context.Context, userID, action string) (Challenge, error) {
	raw, err := s.client.Get(ctx, s.key(userID, action)).Result()
	if err == redis.Nil {
		return Challenge{}, ErrNoChallenge
	}
	if err != nil {
		return Challenge{}, err
	}
	var ch Challenge
	if err := json.Unmarshal([]byte(raw), &ch); err != nil {
		return Challenge{}, err
	}
	attempts, err := s.client.Get(ctx, s.key(userID, action)+":attempts").Int()
	if err != nil && err != redis.Nil {
		return Challenge{}, err
	}
	ch.Attempts = attempts
	return ch, nil
}

// IncrementAttempts bumps the attempt counter atomically via a WATCH-free
// counter key that shares the challenge's lifetime.
func (s *RedisChallengeStore) IncrementAttempts(ctx context.Context, userID, action string) (int, error) {
	key := s.key(userID, action)
	counterKey := key + ":attempts"

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		return 0, ErrNoChallenge
	}

	attempts, err := s.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return 0, err
	}
	if attempts == 1 {
		s.client.Expire(ctx, counterKey, ttl)
	}
	return int(attempts), nil
}

func (s *RedisChallengeStore) Delete(ctx context.Context, userID, action string) error {
	key := s.key(userID, action)
	return s.client.Del(ctx, key, key+":attempts").Err()
}
