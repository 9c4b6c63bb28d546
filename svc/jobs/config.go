package jobs

import "time"

// Config holds schedules of the billing maintenance jobs.
// Schedules use queue.ParseSchedule syntax: "every 15m", "hourly :05", "daily 03:30".
type Config struct {
	CleanupSchedule  string        `env:"JOBS_CLEANUP_SCHEDULE" envDefault:"every 15m"`
	SeatSyncSchedule string        `env:"JOBS_SEAT_SYNC_SCHEDULE" envDefault:"hourly :05"`
	SeatSyncEnabled  bool          `env:"JOBS_SEAT_SYNC_ENABLED" envDefault:"true"`
	RunOnStart       bool          `env:"JOBS_RUN_ON_START" envDefault:"false"`
	Timeout          time.Duration `env:"JOBS_TIMEOUT"` // zero falls back to SCHEDULER_JOB_TIMEOUT
}
