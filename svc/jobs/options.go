package jobs

import (
	"context"
	"log/slog"
	"time"
)

// Locker grants cluster-wide exclusivity for a job run.
// *redis.Locker satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// Option configures Jobs.
type Option func(*Jobs)

func WithLogger(l *slog.Logger) Option {
	return func(j *Jobs) {
		if l != nil {
			j.log = l
		}
	}
}

// WithLocker makes every run skip when another instance holds the job lock.
func WithLocker(l Locker) Option {
	return func(j *Jobs) {
		j.locker = l
	}
}

func WithMetrics(m *Metrics) Option {
	return func(j *Jobs) {
		if m != nil {
			j.metrics = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(j *Jobs) {
		if now != nil {
			j.now = now
		}
	}
}
