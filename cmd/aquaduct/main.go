package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/railzwaylabs/aquaduct/internal/audit"
	"github.com/railzwaylabs/aquaduct/internal/billing"
	"github.com/railzwaylabs/aquaduct/internal/clock"
	"github.com/railzwaylabs/aquaduct/internal/config"
	"github.com/railzwaylabs/aquaduct/internal/consumer"
	"github.com/railzwaylabs/aquaduct/internal/migration"
	"github.com/railzwaylabs/aquaduct/internal/notification"
	"github.com/railzwaylabs/aquaduct/internal/observability"
	"github.com/railzwaylabs/aquaduct/internal/payment"
	"github.com/railzwaylabs/aquaduct/internal/rate"
	"github.com/railzwaylabs/aquaduct/internal/redis"
	"github.com/railzwaylabs/aquaduct/internal/scheduler"
	"github.com/railzwaylabs/aquaduct/internal/security/vault"
	"github.com/railzwaylabs/aquaduct/internal/server"
	"github.com/railzwaylabs/aquaduct/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "aquaduct",
		Short:   "Water billing and notification service",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(newMigrateCmd(), newServeCmd(), newSchedulerCmd(), newAllCmd(), newRunJobCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and record schema state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx.New(domainModules(), server.Module).Run()
			return nil
		},
	}
}

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run archival and penalty refresh jobs on their cron schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx.New(domainModules(), scheduler.Module, fx.Invoke(scheduler.Start)).Run()
			return nil
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run migrations, then start the API and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runMigrate(); err != nil {
				return err
			}
			fx.New(
				domainModules(),
				server.Module,
				scheduler.Module,
				fx.Invoke(scheduler.Start),
			).Run()
			return nil
		},
	}
}

func newRunJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "run-job [job...]",
		Short:     "Run scheduler jobs once and exit",
		Example:   "aquaduct run-job " + scheduler.JobArchiveAuditTrails + " " + scheduler.JobArchiveDeliveryLogs,
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: []string{scheduler.JobArchiveAuditTrails, scheduler.JobArchiveDeliveryLogs, scheduler.JobRefreshPenalties},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobs(cmd.Context(), args)
		},
	}
}

// domainModules is everything the API and the scheduler share.
func domainModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		fx.Invoke(migration.EnforceSchemaGate),
		fx.Invoke(configureGin),
		clock.Module,
		redis.Module,
		vault.Module,
		audit.Module,
		consumer.Module,
		rate.Module,
		notification.Module,
		payment.Module,
		billing.Module,
	)
}

func runMigrate() error {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		migration.Module,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func runJobs(ctx context.Context, jobs []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		sched *scheduler.Scheduler
		log   *zap.Logger
	)
	app := fx.New(
		domainModules(),
		scheduler.Module,
		fx.Populate(&sched, &log),
	)

	startCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() { _ = app.Stop(context.Background()) }()

	for _, job := range jobs {
		if err := sched.Run(ctx, strings.TrimSpace(job)); err != nil {
			log.Error("job failed", zap.String("job", job), zap.Error(err))
			return fmt.Errorf("%s: %w", job, err)
		}
	}
	return nil
}

func configureGin(cfg config.Config) {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}
