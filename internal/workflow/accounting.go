// Package workflow defines the Temporal cron workflows that keep the
// accounting data converged: quota reconciliation, sample collection, quota
// snapshots and retention.
package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/metering/internal/activity"
	"github.com/edvin/metering/internal/core"
)

// cronActivityCtx returns a workflow context with the activity options shared
// by the cron workflows. The jobs are idempotent, so retries are safe.
func cronActivityCtx(ctx workflow.Context, timeout time.Duration) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})
}

// ReconcileQuotasWorkflow recomputes every quota's usage from the resource
// table and corrects drift. Corrections are normal operation, not failures;
// the workflow only fails when the pass itself cannot run.
func ReconcileQuotasWorkflow(ctx workflow.Context) error {
	ctx = cronActivityCtx(ctx, 5*time.Minute)

	var report core.ReconcileReport
	if err := workflow.ExecuteActivity(ctx, "ReconcileQuotas").Get(ctx, &report); err != nil {
		return err
	}

	logger := workflow.GetLogger(ctx)
	if report.Corrections > 0 {
		logger.Info("reconciliation corrected drift",
			"checked", report.QuotasChecked, "corrections", report.Corrections, "totalDrift", report.TotalDrift)
	} else {
		logger.Debug("reconciliation found no drift", "checked", report.QuotasChecked)
	}
	return nil
}

// CollectUsageSamplesWorkflow pulls the last window of utilization samples
// from the monitoring backend into local storage.
func CollectUsageSamplesWorkflow(ctx workflow.Context, windowSeconds int64) error {
	ctx = cronActivityCtx(ctx, 5*time.Minute)

	var stored int64
	err := workflow.ExecuteActivity(ctx, "CollectSamples", activity.CollectSamplesParams{
		WindowSeconds: windowSeconds,
	}).Get(ctx, &stored)
	if err != nil {
		return err
	}

	workflow.GetLogger(ctx).Info("collected usage samples", "stored", stored)
	return nil
}

// SnapshotQuotasWorkflow records the current quota ledger for the timeline
// queries.
func SnapshotQuotasWorkflow(ctx workflow.Context) error {
	ctx = cronActivityCtx(ctx, time.Minute)

	var recorded int64
	if err := workflow.ExecuteActivity(ctx, "SnapshotQuotas").Get(ctx, &recorded); err != nil {
		return err
	}

	workflow.GetLogger(ctx).Info("recorded quota snapshots", "rows", recorded)
	return nil
}

// ExpireSamplesWorkflow archives and deletes samples past the retention
// window, then prunes quota snapshots with the same retention.
func ExpireSamplesWorkflow(ctx workflow.Context, retentionDays int) error {
	ctx = cronActivityCtx(ctx, 15*time.Minute)
	logger := workflow.GetLogger(ctx)

	var result activity.ExpireSamplesResult
	err := workflow.ExecuteActivity(ctx, "ExpireSamples", activity.ExpireSamplesParams{
		RetentionDays: retentionDays,
	}).Get(ctx, &result)
	if err != nil {
		return err
	}
	logger.Info("expired usage samples", "archived", result.Archived, "pruned", result.Pruned)

	var snapshots int64
	err = workflow.ExecuteActivity(ctx, "PruneSnapshots", activity.PruneSnapshotsParams{
		RetentionDays: retentionDays,
	}).Get(ctx, &snapshots)
	if err != nil {
		return err
	}
	logger.Info("pruned quota snapshots", "rows", snapshots)
	return nil
}
