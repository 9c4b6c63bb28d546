package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/paykit/pkg/cache"
	"github.com/dmitrymomot/paykit/pkg/config"
	"github.com/dmitrymomot/paykit/pkg/email"
	"github.com/dmitrymomot/paykit/pkg/logger"
	"github.com/dmitrymomot/paykit/pkg/notifications"
	"github.com/dmitrymomot/paykit/pkg/pg"
	"github.com/dmitrymomot/paykit/pkg/redis"
	"github.com/dmitrymomot/paykit/pkg/subscription"
	"github.com/dmitrymomot/paykit/pkg/subscription/pgstore"
	"github.com/dmitrymomot/paykit/pkg/webhook"
)

// app holds the wired billing core shared by every command.
type app struct {
	cfg   appConfig
	log   *slog.Logger
	pool  *pgxpool.Pool
	redis *goredis.Client

	store     *pgstore.Store
	registry  *subscription.PaymentService
	manager   *subscription.SubscriptionManager
	service   subscription.SubscriptionService
	processor *subscription.WebhookProcessor
	locker    *redis.Locker
}

func loadAppConfig() (appConfig, *slog.Logger, error) {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return cfg, nil, err
	}
	logOpts, err := logger.FromConfig(cfg.Log)
	if err != nil {
		return cfg, nil, err
	}
	opts := append([]logger.Option{logger.WithEnvironment(cfg.Env, cfg.ServiceName), logger.WithOutput(os.Stderr)}, logOpts...)
	return cfg, logger.New(opts...), nil
}

// connectDB opens the Postgres pool.
func connectDB(ctx context.Context) (*pgxpool.Pool, pg.Config, error) {
	var cfg pg.Config
	if err := config.Load(&cfg); err != nil {
		return nil, cfg, fmt.Errorf("postgres config: %w", err)
	}
	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return nil, cfg, err
	}
	return pool, cfg, nil
}

// newApp connects every backing service and builds the subscription core.
func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadAppConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	a.pool, _, err = connectDB(ctx)
	if err != nil {
		return nil, err
	}
	a.store = pgstore.New(a.pool)

	opts := []subscription.Option{
		subscription.WithLogger(log),
		subscription.WithExpiryGracePeriod(cfg.ExpiryGracePeriod),
		subscription.WithLockTimeout(cfg.LockTimeout),
	}

	if cfg.RedisEnabled {
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			a.close()
			return nil, fmt.Errorf("redis config: %w", err)
		}
		a.redis, err = redis.Connect(ctx, redisCfg)
		if err != nil {
			a.close()
			return nil, err
		}
		a.locker = redis.NewLocker(a.redis, redisCfg, redis.WithLockLogger(log))
		opts = append(opts,
			subscription.WithLocker(a.locker),
			subscription.WithDeduplicator(redis.NewDeduplicator(a.redis, redisCfg.LockPrefix+"webhook:", cfg.DedupTTL, log)),
		)
	} else {
		opts = append(opts, subscription.WithDeduplicator(
			cache.NewLRUCache[string, struct{}](cfg.DedupSize, cache.WithTTL(cfg.DedupTTL)),
		))
	}

	if cfg.SeatCountQuery != "" {
		opts = append(opts, subscription.WithSeatCounter(seatCounter(a.pool, cfg.SeatCountQuery)))
	}

	notifier, err := a.notifier()
	if err != nil {
		a.close()
		return nil, err
	}
	opts = append(opts, subscription.WithNotifier(notifier))

	providers, err := buildProviders()
	if err != nil {
		a.close()
		return nil, err
	}
	if err := ensureProviderRows(ctx, a.store, providers, log); err != nil {
		a.close()
		return nil, err
	}
	a.registry = subscription.NewPaymentService(a.store, providers...)

	plans := subscription.NewYAMLSource(cfg.PlansFile)
	if a.manager, err = subscription.NewSubscriptionManager(ctx, plans, a.registry, a.store, opts...); err != nil {
		a.close()
		return nil, err
	}
	if a.processor, err = subscription.NewWebhookProcessor(ctx, plans, a.registry, a.store, opts...); err != nil {
		a.close()
		return nil, err
	}
	if a.service, err = subscription.NewSubscriptionService(ctx, plans, a.registry, a.store, a.store, opts...); err != nil {
		a.close()
		return nil, err
	}

	log.InfoContext(ctx, "billing core ready",
		slog.Any("providers", a.registry.Slugs()),
		slog.String("plans_file", cfg.PlansFile),
		slog.Bool("redis", cfg.RedisEnabled),
	)
	return a, nil
}

// notifier builds the notification manager. Emails go through Postmark when
// a server token is configured and to files otherwise; notices are also
// forwarded to NOTIFY_WEBHOOK_URL when set.
func (a *app) notifier() (subscription.Notifier, error) {
	var deliverers []notifications.Deliverer
	if a.cfg.NotifyEmail {
		if a.cfg.RecipientQuery == "" {
			return nil, errors.New("NOTIFY_RECIPIENT_QUERY is required when NOTIFY_EMAIL_ENABLED is set")
		}
		var emailCfg email.Config
		if err := config.Load(&emailCfg); err != nil {
			return nil, fmt.Errorf("email config: %w", err)
		}

		var sender email.Sender
		if emailCfg.PostmarkServerToken != "" {
			client, err := email.NewPostmarkClient(emailCfg)
			if err != nil {
				return nil, err
			}
			sender = client
		} else {
			a.log.Warn("POSTMARK_SERVER_TOKEN is empty, writing emails to disk", slog.String("dir", emailCfg.DevOutputDir))
			sender = email.NewDevSender(emailCfg.DevOutputDir)
		}
		deliverers = append(deliverers, notifications.NewEmailDeliverer(sender, recipientResolver(a.pool, a.cfg.RecipientQuery)))
	}

	if a.cfg.NotifyWebhookURL != "" {
		if a.cfg.NotifyWebhookSecret == "" {
			a.log.Warn("NOTIFY_WEBHOOK_SECRET is empty, notice webhooks are unsigned")
		}
		sender := webhook.NewSender(
			webhook.WithSecret(a.cfg.NotifyWebhookSecret),
			webhook.WithRetries(a.cfg.NotifyWebhookRetries),
			webhook.WithTimeout(a.cfg.NotifyWebhookTimeout),
			webhook.WithCircuitBreaker(webhook.NewCircuitBreaker(5, time.Minute)),
		)
		deliverers = append(deliverers, notifications.NewWebhookDeliverer(sender, a.cfg.NotifyWebhookURL))
	}

	return notifications.NewManager(
		notifications.NewMemoryStorage(
			notifications.WithMaxUsers(a.cfg.NotifyHistoryUsers),
			notifications.WithMaxPerUser(a.cfg.NotifyHistoryPerUser),
		),
		notifications.NewMultiDeliverer(a.log, deliverers...),
		notifications.WithManagerLogger(a.log),
	), nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("failed to close redis client", logger.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
