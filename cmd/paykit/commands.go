package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/paykit/pkg/config"
	"github.com/dmitrymomot/paykit/pkg/pg"
	"github.com/dmitrymomot/paykit/pkg/subscription/pgstore"
	"github.com/dmitrymomot/paykit/svc/jobs"
)

// Version information, set at build time with -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:           "paykit",
		Short:         "Multi-provider subscription billing service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.LoadEnv(envFiles...)
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "load environment from file (repeatable, later files win)")

	root.AddCommand(
		newServeCmd(),
		newCleanupCmd(),
		newSyncSeatsCmd(),
		newMigrateCmd(),
		newSubscriptionCmd(openSubscriptionService),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("paykit %s (%s)\n", Version, GitCommit)
		},
	}
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			_, log, err := loadAppConfig()
			if err != nil {
				return err
			}
			pool, pgCfg, err := connectDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			return pg.Migrate(ctx, pool, pgCfg, pgstore.Migrations, pgstore.MigrationsDir, log)
		},
	}
}

func newCleanupCmd() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "End local subscriptions whose paid period has elapsed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now().UTC()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = t
			}
			return runMaintenance(cmd, jobs.JobCleanup, func(ctx context.Context, j *jobs.Jobs) error {
				return j.Cleanup(ctx)
			}, jobs.WithClock(func() time.Time { return now }))
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate expiry at this RFC 3339 time instead of now")
	return cmd
}

func newSyncSeatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-seats",
		Short: "Push tenant seat counts to payment providers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMaintenance(cmd, jobs.JobSeatSync, func(ctx context.Context, j *jobs.Jobs) error {
				return j.SyncSeats(ctx)
			})
		},
	}
}

// runMaintenance runs one maintenance job outside the scheduler,
// holding the same cluster lock as the scheduled run.
func runMaintenance(cmd *cobra.Command, name string, run func(context.Context, *jobs.Jobs) error, opts ...jobs.Option) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	opts = append(opts, jobs.WithLogger(a.log))
	if a.locker != nil {
		opts = append(opts, jobs.WithLocker(a.locker))
	}
	start := time.Now()
	if err := run(ctx, jobs.New(a.manager, opts...)); err != nil {
		return err
	}
	cmd.Printf("%s finished in %s\n", name, time.Since(start).Round(time.Millisecond))
	return nil
}
