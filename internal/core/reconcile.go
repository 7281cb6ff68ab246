package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/metering/internal/metrics"
	"github.com/edvin/metering/internal/model"
)

// ReconcileService recomputes true usage from the set of live resources and
// corrects ledger drift. Corrections are evidence of event-processing gaps
// (missed webhook, processor restart), not errors: they are logged, counted,
// and applied. The scan runs without a global lock; a resource transitioning
// mid-scan can skew a scope by at most one event, which the next pass
// corrects.
type ReconcileService struct {
	db     DB
	logger zerolog.Logger
}

func NewReconcileService(db DB, logger zerolog.Logger) *ReconcileService {
	return &ReconcileService{db: db, logger: logger}
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	QuotasChecked int   `json:"quotas_checked"`
	Corrections   int   `json:"corrections"`
	TotalDrift    int64 `json:"total_drift"`
}

type quotaKey struct {
	scopeType    string
	scopeID      string
	resourceType string
}

// Run executes one reconciliation pass over every quota record.
func (s *ReconcileService) Run(ctx context.Context) (*ReconcileReport, error) {
	truth, err := s.liveUsage(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT scope_type, scope_id, resource_type, usage FROM quotas`)
	if err != nil {
		return nil, fmt.Errorf("list quotas: %w", err)
	}
	defer rows.Close()

	var recorded []model.Quota
	for rows.Next() {
		var q model.Quota
		if err := rows.Scan(&q.ScopeType, &q.ScopeID, &q.ResourceType, &q.Usage); err != nil {
			return nil, fmt.Errorf("scan quota: %w", err)
		}
		recorded = append(recorded, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotas: %w", err)
	}

	report := &ReconcileReport{QuotasChecked: len(recorded)}
	for _, q := range recorded {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("reconcile interrupted: %w", err)
		}

		trueUsage := truth[quotaKey{q.ScopeType, q.ScopeID, q.ResourceType}]
		if q.Usage == trueUsage {
			continue
		}

		_, err := s.db.Exec(ctx,
			`UPDATE quotas SET usage = $1
			 WHERE scope_type = $2 AND scope_id = $3 AND resource_type = $4`,
			trueUsage, q.ScopeType, q.ScopeID, q.ResourceType,
		)
		if err != nil {
			return report, fmt.Errorf("correct quota %s/%s %s: %w", q.ScopeType, q.ScopeID, q.ResourceType, err)
		}

		drift := q.Usage - trueUsage
		if drift < 0 {
			drift = -drift
		}
		report.Corrections++
		report.TotalDrift += drift

		metrics.ReconcileCorrections.WithLabelValues(q.ScopeType, q.ResourceType).Inc()
		metrics.ReconcileDrift.WithLabelValues(q.ScopeType, q.ResourceType).Add(float64(drift))
		s.logger.Info().
			Str("scope_type", q.ScopeType).
			Str("scope_id", q.ScopeID).
			Str("resource_type", q.ResourceType).
			Int64("recorded", q.Usage).
			Int64("actual", trueUsage).
			Msg("reconciled quota usage drift")
	}

	return report, nil
}

// liveUsage sums the consumption figures of all non-terminal resources per
// scope and resource type, joined through the cached ancestor scope lists.
// Resources past their release point (deleting and later) contribute nothing.
func (s *ReconcileService) liveUsage(ctx context.Context) (map[quotaKey]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT rs.scope_type, rs.scope_id,
		        COALESCE(SUM(r.vcpu), 0), COALESCE(SUM(r.ram_mb), 0),
		        COALESCE(SUM(r.storage_mb), 0), COUNT(r.id)
		 FROM resource_scopes rs
		 JOIN resources r ON r.id = rs.resource_id
		 WHERE r.state IN ($1, $2)
		 GROUP BY rs.scope_type, rs.scope_id`,
		model.StateProvisioning, model.StateActive,
	)
	if err != nil {
		return nil, fmt.Errorf("sum live resources: %w", err)
	}
	defer rows.Close()

	truth := make(map[quotaKey]int64)
	for rows.Next() {
		var (
			scopeType, scopeID            string
			vcpu, ram, storage, instances int64
		)
		if err := rows.Scan(&scopeType, &scopeID, &vcpu, &ram, &storage, &instances); err != nil {
			return nil, fmt.Errorf("scan live usage: %w", err)
		}
		truth[quotaKey{scopeType, scopeID, model.ResourceVCPU}] = vcpu
		truth[quotaKey{scopeType, scopeID, model.ResourceRAM}] = ram
		truth[quotaKey{scopeType, scopeID, model.ResourceStorage}] = storage
		truth[quotaKey{scopeType, scopeID, model.ResourceMaxInstances}] = instances
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate live usage: %w", err)
	}
	return truth, nil
}
