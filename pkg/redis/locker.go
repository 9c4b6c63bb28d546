package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a lease-based mutex on a single Redis key per lock name.
// A lease expires after its TTL, so a crashed holder never blocks forever.
type Locker struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration
	log        *slog.Logger
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithLockLogger sets the logger used to report failed releases.
func WithLockLogger(log *slog.Logger) LockerOption {
	return func(l *Locker) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLocker creates a Locker using the lock settings of cfg.
func NewLocker(client redis.UniversalClient, cfg Config, opts ...LockerOption) *Locker {
	l := &Locker{
		client:     client,
		prefix:     cfg.LockPrefix,
		ttl:        cfg.LockTTL,
		retryDelay: cfg.LockRetryDelay,
		log:        slog.Default(),
	}
	if l.ttl <= 0 {
		l.ttl = 30 * time.Second
	}
	if l.retryDelay <= 0 {
		l.retryDelay = 50 * time.Millisecond
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock blocks until key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	redisKey := l.prefix + key

	ticker := time.NewTicker(l.retryDelay)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Join(ErrLockNotAcquired, fmt.Errorf("set %s: %w", redisKey, err))
		}
		if ok {
			return l.releaser(redisKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}
}

// TryLock acquires key without waiting. The returned bool is false when the key is held.
func (l *Locker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	token, err := newToken()
	if err != nil {
		return nil, false, err
	}
	redisKey := l.prefix + key

	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, errors.Join(ErrLockNotAcquired, fmt.Errorf("set %s: %w", redisKey, err))
	}
	if !ok {
		return nil, false, nil
	}
	return l.releaser(redisKey, token), true, nil
}

func (l *Locker) releaser(redisKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(redisKey, token) })
	}
}

// release runs on a fresh context: the caller's may already be cancelled.
func (l *Locker) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := unlockScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
		l.log.WarnContext(ctx, "failed to release redis lock", slog.String("key", redisKey), slog.Any("error", err))
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
