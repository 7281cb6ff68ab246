// Package activity holds the Temporal activities behind the periodic
// accounting jobs. Activities wrap the core services so the workflows stay
// free of database code.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/metering/internal/archive"
	"github.com/edvin/metering/internal/core"
	"github.com/edvin/metering/internal/model"
)

// ArchiveWriter uploads a sample batch and returns the object key.
// *archive.Writer satisfies this interface.
type ArchiveWriter interface {
	WriteBatch(ctx context.Context, samples []model.UsageSample) (string, error)
}

// Accounting contains the activities of the accounting cron workflows.
type Accounting struct {
	reconcile *core.ReconcileService
	sample    *core.SampleService
	snapshot  *core.SnapshotService
	writer    ArchiveWriter
	logger    zerolog.Logger
}

// NewAccounting creates the activity struct. writer may be nil when sample
// archival is not configured.
func NewAccounting(services *core.Services, writer ArchiveWriter, logger zerolog.Logger) *Accounting {
	return &Accounting{
		reconcile: services.Reconcile,
		sample:    services.Sample,
		snapshot:  services.Snapshot,
		writer:    writer,
		logger:    logger,
	}
}

var _ ArchiveWriter = (*archive.Writer)(nil)

// ReconcileQuotas runs one full reconciliation pass and returns its report.
func (a *Accounting) ReconcileQuotas(ctx context.Context) (*core.ReconcileReport, error) {
	return a.reconcile.Run(ctx)
}

// CollectSamplesParams holds the parameters for CollectSamples.
type CollectSamplesParams struct {
	WindowSeconds int64 `json:"window_seconds"`
}

// CollectSamples pulls the last window of utilization samples from the
// monitoring backend into local storage and returns the stored row count.
func (a *Accounting) CollectSamples(ctx context.Context, params CollectSamplesParams) (int64, error) {
	window := time.Duration(params.WindowSeconds) * time.Second
	if window <= 0 {
		return 0, fmt.Errorf("collect samples: window must be positive, got %ds", params.WindowSeconds)
	}
	return a.sample.Collect(ctx, window)
}

// SnapshotQuotas records the current quota ledger for timeline queries.
func (a *Accounting) SnapshotQuotas(ctx context.Context) (int64, error) {
	return a.snapshot.Record(ctx)
}

// ExpireSamplesParams holds the retention settings for ExpireSamples.
type ExpireSamplesParams struct {
	RetentionDays int `json:"retention_days"`
	BatchSize     int `json:"batch_size"`
}

// ExpireSamplesResult reports what one retention pass did.
type ExpireSamplesResult struct {
	Archived int64 `json:"archived"`
	Pruned   int64 `json:"pruned"`
}

// ExpireSamples archives samples older than the retention window in batches,
// then deletes them. Without an archive writer it only deletes. Archival
// happens strictly before deletion, so a failed upload leaves the rows in
// place for the next run.
func (a *Accounting) ExpireSamples(ctx context.Context, params ExpireSamplesParams) (*ExpireSamplesResult, error) {
	if params.RetentionDays <= 0 {
		return nil, fmt.Errorf("expire samples: retention must be positive, got %d days", params.RetentionDays)
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 10000
	}
	cutoff := time.Now().Add(-time.Duration(params.RetentionDays) * 24 * time.Hour).Unix()

	result := &ExpireSamplesResult{}
	if a.writer != nil {
		for {
			batch, err := a.sample.OlderThan(ctx, cutoff, batchSize)
			if err != nil {
				return result, err
			}
			if len(batch) == 0 {
				break
			}
			key, err := a.writer.WriteBatch(ctx, batch)
			if err != nil {
				return result, err
			}
			last := batch[len(batch)-1].Timestamp
			pruned, err := a.sample.Prune(ctx, last+1)
			if err != nil {
				return result, err
			}
			result.Archived += int64(len(batch))
			result.Pruned += pruned
			a.logger.Debug().Str("key", key).Int("samples", len(batch)).Msg("archived expired sample batch")
			if len(batch) < batchSize {
				break
			}
		}
	}

	pruned, err := a.sample.Prune(ctx, cutoff)
	if err != nil {
		return result, err
	}
	result.Pruned += pruned
	return result, nil
}

// PruneSnapshotsParams holds the retention settings for PruneSnapshots.
type PruneSnapshotsParams struct {
	RetentionDays int `json:"retention_days"`
}

// PruneSnapshots deletes quota snapshots older than the retention window.
func (a *Accounting) PruneSnapshots(ctx context.Context, params PruneSnapshotsParams) (int64, error) {
	if params.RetentionDays <= 0 {
		return 0, fmt.Errorf("prune snapshots: retention must be positive, got %d days", params.RetentionDays)
	}
	cutoff := time.Now().Add(-time.Duration(params.RetentionDays) * 24 * time.Hour).Unix()
	return a.snapshot.Prune(ctx, cutoff)
}
