package twofactor

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisChallengeStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisChallengeStore(client), mr
}

func TestRedisChallengeStoreLifecycle(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	ch := Challenge{
		UserID:    "sig-1",
		Action:    "sign",
		Code:      "482913",
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	if err := store.Put(ctx, ch); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, "sig-1", "sign")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Code != ch.Code || got.Attempts != 0 {
		t.Fatalf("unexpected challenge: %+v", got)
	}

	for want := 1; want <= 3; want++ {
		n, err := store.IncrementAttempts(ctx, "sig-1", "sign")
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if n != want {
			t.Fatalf("expected %d attempts, got %d", want, n)
		}
	}

	got, _ = store.Get(ctx, "sig-1", "sign")
	if got.Attempts != 3 {
		t.Fatalf("get must reflect attempt count, got %d", got.Attempts)
	}

	if err := store.Delete(ctx, "sig-1", "sign"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "sig-1", "sign"); err != ErrNoChallenge {
		t.Fatalf("expected ErrNoChallenge after delete, got %v", err)
	}
}

func TestRedisChallengeStoreReplaceResetsAttempts(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	first := Challenge{UserID: "sig-2", Action: "sign", Code: "111111", ExpiresAt: time.Now().Add(time.Minute)}
	if err := store.Put(ctx, first); err != nil {
		t.Fatalf("put: %v", err)
	}
	store.IncrementAttempts(ctx, "sig-2", "sign")
	store.IncrementAttempts(ctx, "sig-2", "sign")

	second := Challenge{UserID: "sig-2", Action: "sign", Code: "222222", ExpiresAt: time.Now().Add(time.Minute)}
	if err := store.Put(ctx, second); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := store.Get(ctx, "sig-2", "sign")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Code != "222222" || got.Attempts != 0 {
		t.Fatalf("replacement must reset code and attempts: %+v", got)
	}
}

func TestRedisChallengeStoreExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	ch := Challenge{UserID: "sig-3", Action: "sign", Code: "333333", ExpiresAt: time.Now().Add(time.Minute)}
	if err := store.Put(ctx, ch); err != nil {
		t.Fatalf("put: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "sig-3", "sign"); err != ErrNoChallenge {
		t.Fatalf("expected expiry eviction, got %v", err)
	}
	if _, err := store.IncrementAttempts(ctx, "sig-3", "sign"); err != ErrNoChallenge {
		t.Fatalf("expected ErrNoChallenge on expired increment, got %v", err)
	}
}

func TestMemoryChallengeStoreSweep(t *testing.T) {
	store := NewMemoryChallengeStore(10 * time.Millisecond)
	defer store.Close()
	ctx := context.Background()

	ch := Challenge{UserID: "sig-4", Action: "sign", Code: "444444", ExpiresAt: time.Now().Add(20 * time.Millisecond)}
	if err := store.Put(ctx, ch); err != nil {
		t.Fatalf("put: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := store.Get(ctx, "sig-4", "sign"); err == ErrNoChallenge {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expired challenge was never swept")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
