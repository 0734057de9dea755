package redlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func dialTestRedis(t *testing.T) redis.Cmdable {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skipping integration test: redis not available (%v)", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestTryLockThenUnlockRoundTrip(t *testing.T) {
	rdb := dialTestRedis(t)
	key := "shield-test:redlock:roundtrip"
	rdb.Del(context.Background(), key)

	l, err := NewLocker(rdb, key, WithTTL(2*time.Second))
	if err != nil {
		t.Fatalf("NewLocker: %v", err)
	}

	if err := l.TryLock(context.Background()); err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if err := l.Unlock(context.Background()); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func TestTryLockFailsWhenAlreadyHeld(t *testing.T) {
	rdb := dialTestRedis(t)
	key := "shield-test:redlock:contended"
	rdb.Del(context.Background(), key)

	first, _ := NewLocker(rdb, key, WithTTL(2*time.Second))
	second, _ := NewLocker(rdb, key, WithTTL(2*time.Second))

	if err := first.TryLock(context.Background()); err != nil {
		t.Fatalf("first TryLock: %v", err)
	}
	defer first.Unlock(context.Background())

	err := second.TryLock(context.Background())
	if !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("second TryLock = %v, want ErrLockNotAcquired", err)
	}
}

func TestUnlockWithoutHeldLockFails(t *testing.T) {
	rdb := dialTestRedis(t)
	l, _ := NewLocker(rdb, "shield-test:redlock:unheld")

	if err := l.Unlock(context.Background()); !errors.Is(err, ErrUnlockFailed) {
		t.Fatalf("Unlock without holding the lock = %v, want ErrUnlockFailed", err)
	}
}
