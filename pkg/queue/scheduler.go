package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// JobFunc is the body of a periodic job.
type JobFunc func(ctx context.Context) error

// Scheduler runs registered jobs in-process on their schedules.
// A job never overlaps with itself: a due run is skipped while the previous one is still going.
type Scheduler struct {
	mu       sync.Mutex
	jobs     []*job
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	hooks    []func(name string, took time.Duration, err error)
	wg       sync.WaitGroup
}

type job struct {
	name       string
	schedule   Schedule
	fn         JobFunc
	timeout    time.Duration
	runOnStart bool
	next       time.Time
	running    atomic.Bool
}

// NewScheduler creates an empty scheduler.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		interval: time.Second,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddJob registers fn under name.
func (s *Scheduler) AddJob(name string, schedule Schedule, fn JobFunc, opts ...JobOption) error {
	if schedule == nil {
		return errors.Join(ErrNoScheduleSpecified, fmt.Errorf("job %q", name))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.name == name {
			return errors.Join(ErrJobAlreadyRegistered, fmt.Errorf("job %q", name))
		}
	}

	j := &job{name: name, schedule: schedule, fn: fn}
	for _, opt := range opts {
		opt(j)
	}
	s.jobs = append(s.jobs, j)

	s.logger.Info("registered periodic job",
		slog.String("job", name),
		slog.String("schedule", schedule.String()))
	return nil
}

// Start blocks, running due jobs until ctx is cancelled, then waits for in-flight runs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if len(s.jobs) == 0 {
		s.mu.Unlock()
		return ErrSchedulerNotConfigured
	}
	now := s.now()
	for _, j := range s.jobs {
		if j.runOnStart {
			j.next = now
		} else {
			j.next = j.schedule.Next(now)
		}
	}
	s.mu.Unlock()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Run executes the named job once, synchronously.
// Returns ErrJobRunning if a scheduled run of the same job is in progress.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	j := s.job(name)
	if j == nil {
		return errors.Join(ErrJobNotFound, fmt.Errorf("job %q", name))
	}
	if !j.running.CompareAndSwap(false, true) {
		return errors.Join(ErrJobRunning, fmt.Errorf("job %q", name))
	}
	defer j.running.Store(false)
	return s.execute(ctx, j)
}

func (s *Scheduler) job(name string) *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.name == name {
			return j
		}
	}
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if now.Before(j.next) {
			continue
		}
		j.next = j.schedule.Next(now)
		due = append(due, j)
	}
	s.mu.Unlock()

	for _, j := range due {
		if !j.running.CompareAndSwap(false, true) {
			s.logger.WarnContext(ctx, "skipping periodic job, previous run still in progress", slog.String("job", j.name))
			continue
		}
		s.wg.Add(1)
		go func(j *job) {
			defer s.wg.Done()
			defer j.running.Store(false)
			_ = s.execute(ctx, j)
		}(j)
	}
}

func (s *Scheduler) execute(ctx context.Context, j *job) (err error) {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(ErrJobPanicked, fmt.Errorf("job %q: %v", j.name, r))
		}
		took := time.Since(start)
		for _, hook := range s.hooks {
			hook(j.name, took, err)
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "periodic job failed",
				slog.String("job", j.name),
				slog.Duration("took", took),
				slog.String("error", err.Error()))
			return
		}
		s.logger.DebugContext(ctx, "periodic job finished",
			slog.String("job", j.name),
			slog.Duration("took", took))
	}()

	return j.fn(ctx)
}
