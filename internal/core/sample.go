package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/metering/internal/metrics"
	"github.com/edvin/metering/internal/model"
	"github.com/edvin/metering/internal/monitoring"
)

// SampleService persists utilization samples pulled from the monitoring
// backend and manages their retention. Live queries go straight to the
// backend; the local copy exists for history beyond the backend's own
// retention and for cold archival.
type SampleService struct {
	db        DB
	resources *ResourceService
	source    monitoring.Source
	logger    zerolog.Logger
}

func NewSampleService(db DB, resources *ResourceService, source monitoring.Source, logger zerolog.Logger) *SampleService {
	return &SampleService{db: db, resources: resources, source: source, logger: logger}
}

// Collect fetches the last window of samples for every live resource and
// stores them. Duplicate (resource, item, timestamp) rows are skipped, so an
// overlapping window on the next run is harmless. A backend failure for one
// item is logged and skipped; the other items still get collected.
func (s *SampleService) Collect(ctx context.Context, window time.Duration) (int64, error) {
	ids, err := s.resources.LiveIDsForScope(ctx, "", "")
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	to := time.Now().Unix()
	from := to - int64(window.Seconds())

	var stored int64
	for _, item := range []string{model.ItemCPU, model.ItemMemory, model.ItemStorage} {
		samples, err := s.source.FetchSamples(ctx, ids, item, from, to)
		if err != nil {
			metrics.SampleFetchFailures.Inc()
			s.logger.Warn().Err(err).Str("item", item).Msg("sample collection skipped item")
			continue
		}
		n, err := s.store(ctx, samples)
		if err != nil {
			return stored, err
		}
		stored += n
	}
	return stored, nil
}

func (s *SampleService) store(ctx context.Context, samples []model.UsageSample) (int64, error) {
	var stored int64
	for _, sample := range samples {
		tag, err := s.db.Exec(ctx,
			`INSERT INTO usage_samples (resource_id, item, recorded_at, value)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (resource_id, item, recorded_at) DO NOTHING`,
			sample.ResourceID, sample.Item, sample.Timestamp, sample.Value,
		)
		if err != nil {
			return stored, fmt.Errorf("store sample %s/%s@%d: %w", sample.ResourceID, sample.Item, sample.Timestamp, err)
		}
		stored += tag.RowsAffected()
	}
	return stored, nil
}

// History returns the stored samples of one resource and item in [from, to),
// oldest first.
func (s *SampleService) History(ctx context.Context, resourceID, item string, from, to int64) ([]model.UsageSample, error) {
	if !model.ValidItem(item) {
		return nil, validationErrorf("sample history: unknown item %q", item)
	}

	rows, err := s.db.Query(ctx,
		`SELECT resource_id, item, recorded_at, value FROM usage_samples
		 WHERE resource_id = $1 AND item = $2 AND recorded_at >= $3 AND recorded_at < $4
		 ORDER BY recorded_at`,
		resourceID, item, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("sample history %s/%s: %w", resourceID, item, err)
	}
	defer rows.Close()

	var samples []model.UsageSample
	for rows.Next() {
		var sample model.UsageSample
		if err := rows.Scan(&sample.ResourceID, &sample.Item, &sample.Timestamp, &sample.Value); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return samples, nil
}

// OlderThan returns stored samples recorded before the cutoff, oldest first,
// capped at limit rows. The archive job drains these in batches before Prune
// removes them.
func (s *SampleService) OlderThan(ctx context.Context, cutoff int64, limit int) ([]model.UsageSample, error) {
	rows, err := s.db.Query(ctx,
		`SELECT resource_id, item, recorded_at, value FROM usage_samples
		 WHERE recorded_at < $1 ORDER BY recorded_at LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("samples older than %d: %w", cutoff, err)
	}
	defer rows.Close()

	var samples []model.UsageSample
	for rows.Next() {
		var sample model.UsageSample
		if err := rows.Scan(&sample.ResourceID, &sample.Item, &sample.Timestamp, &sample.Value); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return samples, nil
}

// Prune deletes samples recorded before the cutoff and returns the row count.
func (s *SampleService) Prune(ctx context.Context, cutoff int64) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM usage_samples WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune samples before %d: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}
