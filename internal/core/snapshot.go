package core

import (
	"context"
	"fmt"
)

// SnapshotService records periodic copies of the quota ledger. The snapshots
// feed the quota timeline query, so the recording cadence bounds the timeline
// resolution.
type SnapshotService struct {
	db DB
}

func NewSnapshotService(db DB) *SnapshotService {
	return &SnapshotService{db: db}
}

// Record copies every current quota row into quota_snapshots and returns the
// number of rows recorded.
func (s *SnapshotService) Record(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO quota_snapshots (scope_type, scope_id, resource_type, limit_value, usage, recorded_at)
		 SELECT scope_type, scope_id, resource_type, limit_value, usage, now() FROM quotas`,
	)
	if err != nil {
		return 0, fmt.Errorf("record quota snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Prune deletes snapshots recorded before the cutoff.
func (s *SnapshotService) Prune(ctx context.Context, cutoff int64) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM quota_snapshots WHERE recorded_at < to_timestamp($1)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune quota snapshots before %d: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}
