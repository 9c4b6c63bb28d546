package queue

import (
	"log/slog"
	"time"
)

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithCheckInterval sets how often the scheduler looks for due jobs.
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSchedulerLogger sets the scheduler logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithResultHook registers a callback invoked after every job run.
func WithResultHook(hook func(name string, took time.Duration, err error)) SchedulerOption {
	return func(s *Scheduler) {
		if hook != nil {
			s.hooks = append(s.hooks, hook)
		}
	}
}

// JobOption configures a single periodic job.
type JobOption func(*job)

// WithJobTimeout bounds a single run of the job.
func WithJobTimeout(d time.Duration) JobOption {
	return func(j *job) {
		if d > 0 {
			j.timeout = d
		}
	}
}

// WithRunOnStart makes the first run happen when the scheduler starts
// instead of at the first scheduled time.
func WithRunOnStart() JobOption {
	return func(j *job) {
		j.runOnStart = true
	}
}
