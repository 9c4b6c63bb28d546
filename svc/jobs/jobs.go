package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/paykit/pkg/logger"
	"github.com/dmitrymomot/paykit/pkg/queue"
)

// Job names as registered on the scheduler.
const (
	JobCleanup  = "subscriptions.cleanup"
	JobSeatSync = "subscriptions.seat_sync"
)

const lockPrefix = "jobs:"

// Manager is the maintenance surface of subscription.SubscriptionManager.
type Manager interface {
	CleanupLocalSubscriptionStatuses(ctx context.Context, now time.Time) (int, error)
	SyncSeatQuantities(ctx context.Context) (int, error)
}

// Jobs wraps manager operations as scheduler jobs.
type Jobs struct {
	manager Manager
	locker  Locker
	metrics *Metrics
	log     *slog.Logger
	now     func() time.Time
}

// New creates the job set for manager.
func New(manager Manager, opts ...Option) *Jobs {
	j := &Jobs{
		manager: manager,
		metrics: NewMetrics(nil),
		log:     slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Register adds the jobs enabled by cfg to s.
func (j *Jobs) Register(s *queue.Scheduler, cfg Config) error {
	jobOpts := []queue.JobOption{queue.WithJobTimeout(cfg.Timeout)}
	if cfg.RunOnStart {
		jobOpts = append(jobOpts, queue.WithRunOnStart())
	}

	cleanup, err := queue.ParseSchedule(cfg.CleanupSchedule)
	if err != nil {
		return fmt.Errorf("cleanup schedule: %w", err)
	}
	if err := s.AddJob(JobCleanup, cleanup, j.Cleanup, jobOpts...); err != nil {
		return err
	}

	if !cfg.SeatSyncEnabled {
		return nil
	}
	seats, err := queue.ParseSchedule(cfg.SeatSyncSchedule)
	if err != nil {
		return fmt.Errorf("seat sync schedule: %w", err)
	}
	return s.AddJob(JobSeatSync, seats, j.SyncSeats, jobOpts...)
}

// Cleanup ends local subscriptions whose paid period has elapsed.
func (j *Jobs) Cleanup(ctx context.Context) error {
	return j.exclusive(ctx, JobCleanup, func(ctx context.Context) (int, error) {
		return j.manager.CleanupLocalSubscriptionStatuses(ctx, j.now())
	})
}

// SyncSeats pushes tenant seat counts to providers.
func (j *Jobs) SyncSeats(ctx context.Context) error {
	return j.exclusive(ctx, JobSeatSync, func(ctx context.Context) (int, error) {
		return j.manager.SyncSeatQuantities(ctx)
	})
}

func (j *Jobs) exclusive(ctx context.Context, name string, run func(context.Context) (int, error)) error {
	log := j.log.With(logger.Component("jobs"), slog.String("job", name))

	if j.locker != nil {
		release, ok, err := j.locker.TryLock(ctx, lockPrefix+name)
		if err != nil {
			return errors.Join(ErrLockFailed, err)
		}
		if !ok {
			log.DebugContext(ctx, "job is running on another instance, skipping")
			return nil
		}
		defer release()
	}

	n, err := run(ctx)
	j.metrics.addAffected(name, n)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if n > 0 {
		log.InfoContext(ctx, "maintenance job changed subscriptions", slog.Int("count", n))
	}
	return nil
}
