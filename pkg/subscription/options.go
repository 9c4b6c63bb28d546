package subscription

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// SeatCounter returns the number of billable seats of a tenant.
type SeatCounter func(ctx context.Context, tenantID uuid.UUID) (int, error)

// Deduplicator tracks processed webhook event ids. Add reports whether the
// key was seen for the first time; Remove forgets it so a retry is processed.
type Deduplicator interface {
	Add(key string, value struct{}) bool
	Remove(key string) (struct{}, bool)
}

// Option configures SubscriptionService, SubscriptionManager and WebhookProcessor.
type Option func(*options)

type options struct {
	locker      Locker
	logger      *slog.Logger
	notifier    Notifier
	now         func() time.Time
	seatCounter SeatCounter
	dedup       Deduplicator
	expiryGrace time.Duration
	lockTimeout time.Duration
}

func defaultOptions() options {
	return options{
		locker:      NewMemoryLocker(),
		logger:      slog.Default(),
		notifier:    noopNotifier{},
		now:         func() time.Time { return time.Now().UTC() },
		lockTimeout: 30 * time.Second,
	}
}

// WithLocker sets the per-subscription lock. Defaults to a process-local MemoryLocker;
// use a distributed lock when several instances share the store.
func WithLocker(l Locker) Option {
	return func(o *options) {
		if l != nil {
			o.locker = l
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithClock overrides the time source. Useful for tests with fixed time values.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSeatCounter sets the tenant seat counter used by seat synchronization.
func WithSeatCounter(fn SeatCounter) Option {
	return func(o *options) {
		if fn != nil {
			o.seatCounter = fn
		}
	}
}

// WithDeduplicator sets the webhook event deduplicator, typically an LRU cache with TTL.
func WithDeduplicator(d Deduplicator) Option {
	return func(o *options) {
		if d != nil {
			o.dedup = d
		}
	}
}

// WithExpiryGracePeriod delays the expiry sweep by d past the period end,
// leaving room for late renewal webhooks.
func WithExpiryGracePeriod(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.expiryGrace = d
		}
	}
}

// WithLockTimeout bounds how long an operation waits for the subscription lock.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}
