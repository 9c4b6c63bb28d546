package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/paykit/pkg/clientip"
	"github.com/dmitrymomot/paykit/pkg/config"
	"github.com/dmitrymomot/paykit/pkg/httpserver"
	"github.com/dmitrymomot/paykit/pkg/logger"
	"github.com/dmitrymomot/paykit/pkg/pg"
	"github.com/dmitrymomot/paykit/pkg/queue"
	"github.com/dmitrymomot/paykit/pkg/redis"
	"github.com/dmitrymomot/paykit/svc/jobs"
	"github.com/dmitrymomot/paykit/svc/webhooks"
)

func newServeCmd() *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve provider webhooks and run scheduled maintenance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			return serve(ctx, a, !noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve webhooks only, run maintenance elsewhere")
	return cmd
}

func serve(ctx context.Context, a *app, withScheduler bool) error {
	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	checks := map[string]httpserver.Check{"postgres": pg.Healthcheck(a.pool)}
	if a.redis != nil {
		checks["redis"] = redis.Healthcheck(a.redis)
	}

	allowed, err := clientip.ParseNetworks(a.cfg.WebhookAllowedIPs)
	if err != nil {
		return err
	}

	router := webhooks.NewRouter(webhooks.RouterOptions{
		Webhooks: webhooks.NewHandler(a.processor,
			webhooks.WithLogger(a.log.With(logger.Component("webhooks"))),
			webhooks.WithMetrics(webhooks.NewMetrics(reg)),
		),
		Health:          httpserver.HealthCheckHandler(a.log, a.cfg.HealthTimeout, checks),
		Metrics:         reg,
		AllowedNetworks: allowed,
		TrustProxy:      a.cfg.TrustProxy,
	})
	server := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(a.log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx, router)
	})

	if withScheduler {
		scheduler, err := newScheduler(a, reg)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Info("paykit stopped")
	return nil
}

func newScheduler(a *app, reg prometheus.Registerer) (*queue.Scheduler, error) {
	var (
		queueCfg queue.Config
		jobsCfg  jobs.Config
	)
	if err := config.Load(&queueCfg); err != nil {
		return nil, err
	}
	if err := config.Load(&jobsCfg); err != nil {
		return nil, err
	}
	if jobsCfg.Timeout <= 0 {
		jobsCfg.Timeout = queueCfg.JobTimeout
	}
	if a.cfg.SeatCountQuery == "" && jobsCfg.SeatSyncEnabled {
		a.log.Warn("SEAT_COUNT_QUERY is empty, seat sync disabled")
		jobsCfg.SeatSyncEnabled = false
	}

	metrics := jobs.NewMetrics(reg)
	log := a.log.With(logger.Component("scheduler"))
	scheduler := queue.NewScheduler(
		queue.WithCheckInterval(queueCfg.CheckInterval),
		queue.WithSchedulerLogger(log),
		queue.WithResultHook(metrics.Observe),
	)

	opts := []jobs.Option{jobs.WithLogger(log), jobs.WithMetrics(metrics)}
	if a.locker != nil {
		opts = append(opts, jobs.WithLocker(a.locker))
	}
	if err := jobs.New(a.manager, opts...).Register(scheduler, jobsCfg); err != nil {
		return nil, err
	}
	log.Info("scheduler configured",
		slog.String("cleanup", jobsCfg.CleanupSchedule),
		slog.Bool("seat_sync", jobsCfg.SeatSyncEnabled),
	)
	return scheduler, nil
}
