package redis

import "time"

// Config holds connection and lock settings loaded from REDIS_* environment variables.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL,required" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`

	LockPrefix     string        `env:"REDIS_LOCK_PREFIX" envDefault:"paykit:lock:"`
	LockTTL        time.Duration `env:"REDIS_LOCK_TTL" envDefault:"30s"`          // lease length, must outlive a provider call
	LockRetryDelay time.Duration `env:"REDIS_LOCK_RETRY_DELAY" envDefault:"50ms"` // polling interval while the key is held
}
