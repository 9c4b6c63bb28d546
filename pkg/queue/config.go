package queue

import "time"

// Config holds scheduler settings loaded from SCHEDULER_* environment variables.
type Config struct {
	CheckInterval time.Duration `env:"SCHEDULER_CHECK_INTERVAL" envDefault:"1s"`
	JobTimeout    time.Duration `env:"SCHEDULER_JOB_TIMEOUT" envDefault:"10m"`
}
