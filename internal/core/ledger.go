package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/metering/internal/config"
	"github.com/edvin/metering/internal/model"
)

// LedgerService owns the quota records: per-scope, per-resource-type
// limit/usage counters. All usage mutation goes through Adjust, which is
// serialized per row by the database; adjustments to different rows never
// block each other. Multi-scope batches run inside one transaction so readers
// only ever observe a lifecycle event applied to all ancestor scopes or none.
type LedgerService struct {
	db       DB
	defaults config.DefaultLimits
}

func NewLedgerService(db DB, defaults config.DefaultLimits) *LedgerService {
	return &LedgerService{db: db, defaults: defaults}
}

// EnsureScopeQuotas lazily creates the quota rows for a new scope, one per
// tracked resource type, with usage 0 and the default limit from the policy
// file. Idempotent.
func (s *LedgerService) EnsureScopeQuotas(ctx context.Context, scopeType, scopeID string) error {
	for _, rt := range model.ResourceTypes {
		_, err := s.db.Exec(ctx,
			`INSERT INTO quotas (scope_type, scope_id, resource_type, limit_value, usage)
			 VALUES ($1, $2, $3, $4, 0)
			 ON CONFLICT (scope_type, scope_id, resource_type) DO NOTHING`,
			scopeType, scopeID, rt, s.defaults.For(scopeType, rt),
		)
		if err != nil {
			return fmt.Errorf("ensure quota %s/%s %s: %w", scopeType, scopeID, rt, err)
		}
	}
	return nil
}

// DropScopeQuotas removes all quota rows of a destroyed scope.
func (s *LedgerService) DropScopeQuotas(ctx context.Context, scopeType, scopeID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM quotas WHERE scope_type = $1 AND scope_id = $2`,
		scopeType, scopeID,
	)
	if err != nil {
		return fmt.Errorf("drop quotas %s/%s: %w", scopeType, scopeID, err)
	}
	return nil
}

// SetLimit sets the limit for one quota, creating the row when absent.
// Idempotent and independent of usage. A nil limit means unlimited.
func (s *LedgerService) SetLimit(ctx context.Context, scopeType, scopeID, resourceType string, limit *int64) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO quotas (scope_type, scope_id, resource_type, limit_value, usage)
		 VALUES ($1, $2, $3, $4, 0)
		 ON CONFLICT (scope_type, scope_id, resource_type)
		 DO UPDATE SET limit_value = EXCLUDED.limit_value`,
		scopeType, scopeID, resourceType, limit,
	)
	if err != nil {
		return fmt.Errorf("set limit %s/%s %s: %w", scopeType, scopeID, resourceType, err)
	}
	return nil
}

// Get returns one quota record.
func (s *LedgerService) Get(ctx context.Context, scopeType, scopeID, resourceType string) (*model.Quota, error) {
	q := model.Quota{ScopeType: scopeType, ScopeID: scopeID, ResourceType: resourceType}
	err := s.db.QueryRow(ctx,
		`SELECT limit_value, usage FROM quotas
		 WHERE scope_type = $1 AND scope_id = $2 AND resource_type = $3`,
		scopeType, scopeID, resourceType,
	).Scan(&q.Limit, &q.Usage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get quota %s/%s %s: %w", scopeType, scopeID, resourceType, ErrQuotaRecordMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("get quota %s/%s %s: %w", scopeType, scopeID, resourceType, err)
	}
	return &q, nil
}

// ListByScope returns every quota record of one scope.
func (s *LedgerService) ListByScope(ctx context.Context, scopeType, scopeID string) ([]model.Quota, error) {
	rows, err := s.db.Query(ctx,
		`SELECT resource_type, limit_value, usage FROM quotas
		 WHERE scope_type = $1 AND scope_id = $2 ORDER BY resource_type`,
		scopeType, scopeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list quotas %s/%s: %w", scopeType, scopeID, err)
	}
	defer rows.Close()

	var quotas []model.Quota
	for rows.Next() {
		q := model.Quota{ScopeType: scopeType, ScopeID: scopeID}
		if err := rows.Scan(&q.ResourceType, &q.Limit, &q.Usage); err != nil {
			return nil, fmt.Errorf("scan quota: %w", err)
		}
		quotas = append(quotas, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotas: %w", err)
	}
	return quotas, nil
}

// Check reports whether usage + delta stays within the limit. Advisory only:
// it takes no lock, so a concurrent adjustment can still push usage over the
// limit between check and commit. Always true for an unlimited quota.
func (s *LedgerService) Check(ctx context.Context, scopeType, scopeID, resourceType string, delta int64) (bool, error) {
	q, err := s.Get(ctx, scopeType, scopeID, resourceType)
	if err != nil {
		return false, err
	}
	if q.Limit == nil {
		return true, nil
	}
	return q.Usage+delta <= *q.Limit, nil
}

// CheckFigures validates a full figure delta against every given scope and
// returns a description per quota that would be exceeded. An empty result
// means the change fits everywhere.
func (s *LedgerService) CheckFigures(ctx context.Context, scopes []model.ScopeRef, figures model.Figures) ([]string, error) {
	deltas := figureDeltas(figures, 1)
	var violations []string
	for _, scope := range scopes {
		for _, rt := range model.ResourceTypes {
			delta := deltas[rt]
			if delta == 0 {
				continue
			}
			q, err := s.Get(ctx, scope.Type, scope.ID, rt)
			if errors.Is(err, ErrQuotaRecordMissing) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if q.Limit != nil && q.Usage+delta > *q.Limit {
				violations = append(violations, fmt.Sprintf(
					"%s quota limit: %d, requires %d (%s %s)",
					rt, *q.Limit, q.Usage+delta, scope.Type, scope.ID))
			}
		}
	}
	return violations, nil
}

// Adjust atomically adds delta to one quota row within tx and returns the new
// usage. When the quota row is absent but its scope still exists, the row is
// created first; when the scope is gone, ErrQuotaRecordMissing is returned.
func (s *LedgerService) Adjust(ctx context.Context, tx pgx.Tx, scopeType, scopeID, resourceType string, delta int64) (int64, error) {
	var usage int64
	err := tx.QueryRow(ctx,
		`UPDATE quotas SET usage = usage + $1
		 WHERE scope_type = $2 AND scope_id = $3 AND resource_type = $4
		 RETURNING usage`,
		delta, scopeType, scopeID, resourceType,
	).Scan(&usage)
	if err == nil {
		return usage, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("adjust %s/%s %s: %w", scopeType, scopeID, resourceType, err)
	}

	exists, err := scopeExists(ctx, tx, scopeType, scopeID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("adjust %s/%s %s: %w", scopeType, scopeID, resourceType, ErrQuotaRecordMissing)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO quotas (scope_type, scope_id, resource_type, limit_value, usage)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (scope_type, scope_id, resource_type)
		 DO UPDATE SET usage = quotas.usage + $5
		 RETURNING usage`,
		scopeType, scopeID, resourceType, s.defaults.For(scopeType, resourceType), delta,
	).Scan(&usage)
	if err != nil {
		return 0, fmt.Errorf("create quota %s/%s %s: %w", scopeType, scopeID, resourceType, err)
	}
	return usage, nil
}

// AdjustBatch applies one lifecycle event's deltas to every scope in the
// resource's ancestor list inside a single transaction. Any failure rolls the
// whole batch back so no scope is ever left partially counted.
func (s *LedgerService) AdjustBatch(ctx context.Context, scopes []model.ScopeRef, deltas map[string]int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin adjust batch: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.applyBatch(ctx, tx, scopes, deltas); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit adjust batch: %w", err)
	}
	return nil
}

func (s *LedgerService) applyBatch(ctx context.Context, tx pgx.Tx, scopes []model.ScopeRef, deltas map[string]int64) error {
	for _, scope := range scopes {
		for _, rt := range model.ResourceTypes {
			delta := deltas[rt]
			if delta == 0 {
				continue
			}
			if _, err := s.Adjust(ctx, tx, scope.Type, scope.ID, rt, delta); err != nil {
				return err
			}
		}
	}
	return nil
}

func scopeExists(ctx context.Context, tx pgx.Tx, scopeType, scopeID string) (bool, error) {
	var table string
	switch scopeType {
	case model.ScopeCustomer:
		table = "customers"
	case model.ScopeProject:
		table = "projects"
	case model.ScopeProjectGroup:
		table = "project_groups"
	default:
		return false, validationErrorf("unknown scope type %q", scopeType)
	}

	var exists bool
	err := tx.QueryRow(ctx, fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", table), scopeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s %s: %w", scopeType, scopeID, err)
	}
	return exists, nil
}

// figureDeltas maps consumption figures (multiplied by sign) onto ledger
// resource types. The instance count is handled separately by the caller.
func figureDeltas(f model.Figures, sign int64) map[string]int64 {
	return map[string]int64{
		model.ResourceVCPU:    sign * f.VCPU,
		model.ResourceRAM:     sign * f.RAMMB,
		model.ResourceStorage: sign * f.StorageMB,
	}
}
