package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/edvin/metering/internal/activity"
	"github.com/edvin/metering/internal/archive"
	"github.com/edvin/metering/internal/config"
	"github.com/edvin/metering/internal/core"
	"github.com/edvin/metering/internal/db"
	"github.com/edvin/metering/internal/logging"
	"github.com/edvin/metering/internal/metrics"
	"github.com/edvin/metering/internal/monitoring"
	"github.com/edvin/metering/internal/workflow"
)

const taskQueue = "metering-tasks"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewCorePool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	defaults, err := config.LoadDefaultLimits(cfg.DefaultLimitsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load default quota limits")
	}

	tc, err := temporalclient.Dial(temporalclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	source := monitoring.NewClient(cfg.MonitoringURL, cfg.MonitoringToken)
	services := core.NewServices(pool, source, defaults, cfg.MonitoringFailSilently, logger)

	var writer activity.ArchiveWriter
	if cfg.ArchiveBucket != "" {
		writer = archive.NewWriter(logger, cfg.ArchiveBucket, cfg.ArchiveEndpoint,
			cfg.ArchiveRegion, cfg.ArchiveAccessKey, cfg.ArchiveSecretKey)
		logger.Info().Str("bucket", cfg.ArchiveBucket).Msg("sample archival enabled")
	}

	w := worker.New(tc, taskQueue, worker.Options{})

	// Register activities
	accountingActivities := activity.NewAccounting(services, writer, logger)
	w.RegisterActivity(accountingActivities)

	// Register workflows
	w.RegisterWorkflow(workflow.ReconcileQuotasWorkflow)
	w.RegisterWorkflow(workflow.CollectUsageSamplesWorkflow)
	w.RegisterWorkflow(workflow.SnapshotQuotasWorkflow)
	w.RegisterWorkflow(workflow.ExpireSamplesWorkflow)

	if cfg.MetricsAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsAddr)
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	go func() {
		logger.Info().Str("taskQueue", taskQueue).Msg("starting temporal worker")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("worker failed")
		}
	}()

	// Register cron schedules. Errors for already-existing schedules are
	// ignored so that re-deploys do not fail.
	registerCronSchedules(ctx, tc, taskQueue, cfg, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down worker")
	cancel()
}

type cronSchedule struct {
	id       string
	cron     string
	workflow interface{}
	args     []interface{}
}

func registerCronSchedules(ctx context.Context, tc temporalclient.Client, taskQueue string, cfg *config.Config, logger zerolog.Logger) {
	schedules := []cronSchedule{
		{
			id:       "quota-reconcile-cron",
			cron:     cfg.ReconcileCron,
			workflow: workflow.ReconcileQuotasWorkflow,
		},
		{
			id:       "sample-collect-cron",
			cron:     cfg.CollectCron,
			workflow: workflow.CollectUsageSamplesWorkflow,
			args:     []interface{}{int64(600)},
		},
		{
			id:       "quota-snapshot-cron",
			cron:     cfg.SnapshotCron,
			workflow: workflow.SnapshotQuotasWorkflow,
		},
		{
			id:       "sample-retention-cron",
			cron:     cfg.PruneCron,
			workflow: workflow.ExpireSamplesWorkflow,
			args:     []interface{}{cfg.SampleRetentionDays},
		},
	}

	scheduleClient := tc.ScheduleClient()

	for _, s := range schedules {
		_, err := scheduleClient.Create(ctx, temporalclient.ScheduleOptions{
			ID: s.id,
			Spec: temporalclient.ScheduleSpec{
				CronExpressions: []string{s.cron},
			},
			Action: &temporalclient.ScheduleWorkflowAction{
				ID:        s.id,
				Workflow:  s.workflow,
				Args:      s.args,
				TaskQueue: taskQueue,
			},
		})
		if err != nil {
			if strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "AlreadyExists") || strings.Contains(err.Error(), "already registered") {
				logger.Info().Str("id", s.id).Msg("cron schedule already exists, skipping")
			} else {
				logger.Fatal().Err(err).Str("id", s.id).Msg("failed to create cron schedule")
			}
		} else {
			logger.Info().Str("id", s.id).Str("cron", s.cron).Msg("created cron schedule")
		}
	}
}
