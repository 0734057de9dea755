// Package redlock is a single-key Redis mutex used to make sure only
// one shieldd replica runs the ban sweeper's maintenance pass at a
// time, even when several replicas share the same store.
package redlock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const defaultTTL = 1 * time.Second

// ErrLockNotAcquired is returned by TryLock when the lock is already
// held by another instance.
var ErrLockNotAcquired = errors.New("redlock: lock not acquired")

// ErrUnlockFailed is returned by Unlock when the lock was not held by
// this instance (it expired or was never acquired).
var ErrUnlockFailed = errors.New("redlock: failed to unlock")

// unlockScript deletes KEYS[1] only if it still holds ARGV[1], so an
// instance can never release a lock another instance has since
// acquired after this one's TTL expired.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Locker is a distributed lock on a single resource key.
type Locker struct {
	client redis.Cmdable
	key    string
	value  string
	ttl    time.Duration
}

// Option configures a Locker.
type Option func(*Locker)

// WithTTL sets how long the lock is held before it expires on its
// own. Defaults to 1 second; the sweeper overrides this to cover its
// expected pass duration.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithMaxRetries exists for configuration compatibility with callers
// that expect a retrying Lock; the sweeper only ever calls TryLock, so
// this is accepted and ignored.
func WithMaxRetries(int) Option {
	return func(*Locker) {}
}

// NewLocker creates a Locker over key.
func NewLocker(client redis.Cmdable, key string, options ...Option) (*Locker, error) {
	l := &Locker{client: client, key: key, ttl: defaultTTL}
	for _, opt := range options {
		opt(l)
	}
	log.Debug().Str("key", key).Dur("ttl", l.ttl).Msg("redlock created")
	return l, nil
}

// TryLock attempts to acquire the lock immediately via SETNX, without
// waiting. Returns ErrLockNotAcquired if another instance holds it.
func (l *Locker) TryLock(ctx context.Context) error {
	lockValue := uuid.NewString()
	logCtx := log.With().Str("key", l.key).Dur("ttl", l.ttl).Logger()

	ok, err := l.client.SetNX(ctx, l.key, lockValue, l.ttl).Result()
	if err != nil {
		logCtx.Error().Err(err).Msg("failed to execute setnx for redlock")
		return err
	}
	if !ok {
		return ErrLockNotAcquired
	}

	l.value = lockValue
	logCtx.Debug().Msg("redlock acquired")
	return nil
}

// Unlock releases the lock via a compare-and-delete Lua script, so an
// instance can never delete a lock it no longer holds.
func (l *Locker) Unlock(ctx context.Context) error {
	if l.value == "" {
		log.Warn().Str("key", l.key).Msg("unlock attempted without a held lock")
		return ErrUnlockFailed
	}

	heldValue := l.value
	l.value = ""

	res, err := l.client.Eval(ctx, unlockScript, []string{l.key}, heldValue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			log.Warn().Str("key", l.key).Msg("redlock key not found during unlock, treating as already released")
			return nil
		}
		log.Error().Err(err).Str("key", l.key).Msg("failed to execute redlock unlock script")
		return err
	}

	if val, ok := res.(int64); ok && val == 1 {
		return nil
	}

	log.Warn().Str("key", l.key).Interface("script_result", res).Msg("redlock unlock failed: value did not match, lock may have expired and been re-acquired")
	return ErrUnlockFailed
}
