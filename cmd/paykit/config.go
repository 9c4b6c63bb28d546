package main

import (
	"time"

	"github.com/dmitrymomot/paykit/pkg/logger"
)

// appConfig holds process-level settings loaded from the environment.
type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"APP_SERVICE_NAME" envDefault:"paykit"`
	PlansFile   string `env:"PLANS_FILE" envDefault:"plans.yaml"`

	// Redis backs the subscription lock and webhook dedup across instances.
	// Without it both stay process-local.
	RedisEnabled bool          `env:"REDIS_ENABLED" envDefault:"false"`
	DedupTTL     time.Duration `env:"WEBHOOK_DEDUP_TTL" envDefault:"72h"`
	DedupSize    int           `env:"WEBHOOK_DEDUP_SIZE" envDefault:"10000"`

	ExpiryGracePeriod time.Duration `env:"SUBSCRIPTION_EXPIRY_GRACE" envDefault:"0s"`
	LockTimeout       time.Duration `env:"SUBSCRIPTION_LOCK_TIMEOUT" envDefault:"30s"`

	// SQL hooks into the host application's schema. Both take one uuid parameter.
	SeatCountQuery string `env:"SEAT_COUNT_QUERY"`       // e.g. SELECT count(*) FROM tenant_members WHERE tenant_id = $1
	RecipientQuery string `env:"NOTIFY_RECIPIENT_QUERY"` // e.g. SELECT email FROM users WHERE id = $1

	NotifyEmail bool `env:"NOTIFY_EMAIL_ENABLED" envDefault:"false"`

	// In-process notice history, bounded per user and by user count.
	NotifyHistoryUsers   int `env:"NOTIFY_HISTORY_USERS" envDefault:"10000"`
	NotifyHistoryPerUser int `env:"NOTIFY_HISTORY_PER_USER" envDefault:"100"`

	// Notices are also posted to the host application when a URL is set.
	NotifyWebhookURL     string        `env:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookSecret  string        `env:"NOTIFY_WEBHOOK_SECRET"`
	NotifyWebhookRetries int           `env:"NOTIFY_WEBHOOK_RETRIES" envDefault:"3"`
	NotifyWebhookTimeout time.Duration `env:"NOTIFY_WEBHOOK_TIMEOUT" envDefault:"10s"`

	// Sender ranges published by the providers, comma separated. Empty allows all.
	WebhookAllowedIPs []string `env:"WEBHOOK_ALLOWED_IPS" envSeparator:","`
	TrustProxy        bool     `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	HealthTimeout time.Duration `env:"HEALTH_TIMEOUT" envDefault:"3s"`

	Log logger.Config
}
