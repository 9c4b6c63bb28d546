package queue

import "errors"

var (
	ErrInvalidSchedule        = errors.New("invalid schedule format")
	ErrJobAlreadyRegistered   = errors.New("job already registered")
	ErrSchedulerNotConfigured = errors.New("scheduler has no registered jobs")
	ErrNoScheduleSpecified    = errors.New("no schedule specified for periodic job")
	ErrJobPanicked            = errors.New("periodic job panicked")
	ErrJobNotFound            = errors.New("periodic job not found")
	ErrJobRunning             = errors.New("periodic job is still running")
)
