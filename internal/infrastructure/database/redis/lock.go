package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
)

// Lock failure modes callers branch on.
var (
	ErrLockNotAcquired = errors.New(errors.CodeConflict, "lock already held")
	ErrLockNotHeld     = errors.New(errors.CodeConflict, "lock not held by this owner")
)

const lockKeyPrefix = "kipx:lock:"

// unlockScript releases the key only while the stored value still matches
// the owner token, so a holder whose lock expired and was reacquired
// cannot delete the new owner's key.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// extendScript refreshes the TTL under the same ownership check.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

// Lock is a single-owner distributed mutex.  Each instance carries a
// random owner token; only the instance that acquired the key can release
// or extend it.  The export worker takes one per export ID so duplicate
// job deliveries are dropped instead of run twice.
type Lock struct {
	client *redis.Client
	logger logging.Logger

	key   string
	value string

	ttl        time.Duration
	retryDelay time.Duration
	retryCount int

	watchdog         bool
	watchdogInterval time.Duration
	watchdogCancel   context.CancelFunc
	watchdogDone     chan struct{}
}

// LockOption adjusts how a Lock behaves.
type LockOption func(*Lock)

// WithLockTTL sets how long the key lives without an extension.
func WithLockTTL(ttl time.Duration) LockOption {
	return func(l *Lock) { l.ttl = ttl }
}

// WithRetryDelay sets the pause between blocking Lock attempts.
func WithRetryDelay(d time.Duration) LockOption {
	return func(l *Lock) { l.retryDelay = d }
}

// WithRetryCount bounds how many acquisition attempts Lock makes.
func WithRetryCount(n int) LockOption {
	return func(l *Lock) { l.retryCount = n }
}

// WithWatchdog renews the TTL from a background goroutine while the lock
// is held.  An interval <= 0 defaults to a third of the TTL.
func WithWatchdog(interval time.Duration) LockOption {
	return func(l *Lock) {
		l.watchdog = true
		l.watchdogInterval = interval
	}
}

// NewLock builds a lock named name.  Nothing touches the server until
// Lock or TryLock is called.
func NewLock(client *redis.Client, name string, logger logging.Logger, opts ...LockOption) *Lock {
	l := &Lock{
		client:     client,
		logger:     logger.Named("lock"),
		key:        lockKeyPrefix + name,
		value:      uuid.New().String(),
		ttl:        30 * time.Second,
		retryDelay: 100 * time.Millisecond,
		retryCount: 30,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryLock makes a single acquisition attempt and reports whether it won.
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.CodeCacheError, "lock acquire failed")
	}
	if ok && l.watchdog {
		l.startWatchdog()
	}
	return ok, nil
}

// Lock retries acquisition up to retryCount times, then gives up with
// ErrLockNotAcquired.
func (l *Lock) Lock(ctx context.Context) error {
	for i := 0; i < l.retryCount; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}
	return ErrLockNotAcquired
}

// Unlock stops the watchdog and releases the key.  It fails with
// ErrLockNotHeld when the key expired or belongs to another owner.
func (l *Lock) Unlock(ctx context.Context) error {
	l.stopWatchdog()
	res, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Result()
	if err != nil {
		return errors.Wrap(err, errors.CodeCacheError, "lock release failed")
	}
	if res.(int64) == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend pushes the expiry out to ttl from now.  It reports false when
// the lock is no longer held.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	res, err := extendScript.Run(ctx, l.client, []string{l.key}, l.value, ttl.Milliseconds()).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.CodeCacheError, "lock extend failed")
	}
	return res.(int64) == 1, nil
}

// TTL reports the remaining lifetime of the key.
func (l *Lock) TTL(ctx context.Context) (time.Duration, error) {
	d, err := l.client.PTTL(ctx, l.key).Result()
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeCacheError, "lock ttl failed")
	}
	return d, nil
}

func (l *Lock) startWatchdog() {
	ctx, cancel := context.WithCancel(context.Background())
	l.watchdogCancel = cancel
	l.watchdogDone = make(chan struct{})
	interval := l.watchdogInterval
	if interval <= 0 {
		interval = l.ttl / 3
	}
	go l.runWatchdog(ctx, interval)
}

func (l *Lock) stopWatchdog() {
	if l.watchdogCancel != nil {
		l.watchdogCancel()
		<-l.watchdogDone
		l.watchdogCancel = nil
	}
}

// runWatchdog renews the TTL until the lock is released or lost.
func (l *Lock) runWatchdog(ctx context.Context, interval time.Duration) {
	defer close(l.watchdogDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := l.Extend(ctx, l.ttl)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				l.logger.Error("lock watchdog extend failed",
					logging.String("key", l.key),
					logging.Err(err))
				return
			}
			if !ok {
				l.logger.Warn("lock watchdog lost ownership", logging.String("key", l.key))
				return
			}
		}
	}
}
