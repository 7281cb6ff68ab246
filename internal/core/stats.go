package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/metering/internal/metrics"
	"github.com/edvin/metering/internal/model"
	"github.com/edvin/metering/internal/monitoring"
	"github.com/edvin/metering/internal/timeseries"
)

// fetchConcurrency bounds the parallel sample fetches of one usage query.
const fetchConcurrency = 8

// StatsService answers the aggregated statistics queries. All methods are
// read-only and honor context cancellation; a canceled query returns the
// context error instead of partial data.
type StatsService struct {
	db           DB
	resources    *ResourceService
	source       monitoring.Source
	failSilently bool
	logger       zerolog.Logger
}

func NewStatsService(db DB, resources *ResourceService, source monitoring.Source, failSilently bool, logger zerolog.Logger) *StatsService {
	return &StatsService{
		db:           db,
		resources:    resources,
		source:       source,
		failSilently: failSilently,
		logger:       logger,
	}
}

// UsageStatistics returns bucketized utilization for one item over every
// resource in scope. Per-resource sample series are averaged into buckets
// first and then summed across resources, so a resource reporting more
// frequently never outweighs its peers. In fail-silent mode a resource whose
// samples cannot be fetched contributes zeros and a warning instead of
// failing the query.
func (s *StatsService) UsageStatistics(ctx context.Context, scopeType, scopeID, item string, from, to int64, nBuckets int) ([]timeseries.Bucket, error) {
	if !model.ValidScopeType(scopeType) {
		return nil, validationErrorf("usage statistics: unknown scope type %q", scopeType)
	}
	if !model.ValidItem(item) {
		return nil, validationErrorf("usage statistics: unknown item %q", item)
	}
	if nBuckets <= 0 {
		return nil, validationErrorf("usage statistics: n_buckets must be positive")
	}
	if to <= from {
		return nil, validationErrorf("usage statistics: empty range [%d, %d)", from, to)
	}

	ids, err := s.resources.LiveIDsForScope(ctx, scopeType, scopeID)
	if err != nil {
		return nil, err
	}

	total, err := timeseries.Bucketize(nil, from, to, nBuckets)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for _, id := range ids {
		g.Go(func() error {
			samples, err := s.source.FetchSamples(gctx, []string{id}, item, from, to)
			if err != nil {
				if !s.failSilently {
					return fmt.Errorf("fetch samples for %s: %w", id, err)
				}
				metrics.SampleFetchFailures.Inc()
				s.logger.Warn().Err(err).Str("resource", id).Str("item", item).
					Msg("sample fetch failed, counting as zero usage")
				return nil
			}

			buckets, err := timeseries.Bucketize(samples, from, to, nBuckets)
			if err != nil {
				return err
			}

			mu.Lock()
			timeseries.SumBuckets(total, buckets)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return total, nil
}

// QuotaStatistics returns the current limit and usage per resource type for
// one scope instance, or summed across every instance of the scope type when
// scopeID is empty. Result keys follow the <type> / <type>_usage convention;
// a limit of -1 means unlimited (for sums: no instance carries a limit).
func (s *StatsService) QuotaStatistics(ctx context.Context, scopeType, scopeID string) (map[string]int64, error) {
	if !model.ValidScopeType(scopeType) {
		return nil, validationErrorf("quota statistics: unknown scope type %q", scopeType)
	}

	query := `SELECT resource_type,
	                 SUM(usage),
	                 SUM(limit_value) FILTER (WHERE limit_value IS NOT NULL),
	                 COUNT(limit_value)
	          FROM quotas WHERE scope_type = $1`
	args := []any{scopeType}
	if scopeID != "" {
		query += ` AND scope_id = $2`
		args = append(args, scopeID)
	}
	query += ` GROUP BY resource_type`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("quota statistics %s/%s: %w", scopeType, scopeID, err)
	}
	defer rows.Close()

	result := make(map[string]int64, 2*len(model.ResourceTypes))
	for _, rt := range model.ResourceTypes {
		result[rt] = -1
		result[rt+"_usage"] = 0
	}

	for rows.Next() {
		var (
			resourceType string
			usage        int64
			limitSum     *int64
			limited      int64
		)
		if err := rows.Scan(&resourceType, &usage, &limitSum, &limited); err != nil {
			return nil, fmt.Errorf("scan quota statistics: %w", err)
		}
		result[resourceType+"_usage"] = usage
		if limited > 0 && limitSum != nil {
			result[resourceType] = *limitSum
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quota statistics: %w", err)
	}
	return result, nil
}

// TimelinePoint is one interval of a quota timeline. Values holds, per
// requested resource type, the <type> limit and <type>_usage figures.
type TimelinePoint struct {
	From   int64              `json:"from"`
	To     int64              `json:"to"`
	Values map[string]float64 `json:"values"`
}

// QuotaTimeline returns quota limit/usage history bucketed by calendar
// interval, from the periodic ledger snapshots. Within each interval,
// snapshot values are averaged per scope first and then summed across scopes,
// which is the documented aggregation policy: a scope snapshotted more often
// must not weigh more.
func (s *StatsService) QuotaTimeline(ctx context.Context, scopeType, scopeID, resourceType string, from, to int64, interval string) ([]TimelinePoint, error) {
	if !model.ValidScopeType(scopeType) {
		return nil, validationErrorf("quota timeline: unknown scope type %q", scopeType)
	}
	if resourceType != "" && !model.ValidResourceType(resourceType) {
		return nil, validationErrorf("quota timeline: unknown resource type %q", resourceType)
	}
	if !timeseries.ValidInterval(interval) {
		return nil, validationErrorf("quota timeline: unknown interval %q", interval)
	}

	windows, err := timeseries.IntervalWindows(from, to, interval)
	if err != nil {
		return nil, validationErrorf("quota timeline: %v", err)
	}

	points := make([]TimelinePoint, 0, len(windows))
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("quota timeline interrupted: %w", err)
		}

		query := `SELECT resource_type,
		                 SUM(avg_usage),
		                 SUM(avg_limit)
		          FROM (
		              SELECT scope_id, resource_type,
		                     AVG(usage) AS avg_usage,
		                     AVG(COALESCE(limit_value, -1)) AS avg_limit
		              FROM quota_snapshots
		              WHERE scope_type = $1 AND recorded_at >= to_timestamp($2) AND recorded_at < to_timestamp($3)`
		args := []any{scopeType, w.From, w.To}
		argIdx := 4
		if scopeID != "" {
			query += fmt.Sprintf(` AND scope_id = $%d`, argIdx)
			args = append(args, scopeID)
			argIdx++
		}
		if resourceType != "" {
			query += fmt.Sprintf(` AND resource_type = $%d`, argIdx)
			args = append(args, resourceType)
		}
		query += `
		              GROUP BY scope_id, resource_type
		          ) per_scope
		          GROUP BY resource_type`

		rows, err := s.db.Query(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("quota timeline window [%d, %d): %w", w.From, w.To, err)
		}

		point := TimelinePoint{From: w.From, To: w.To, Values: map[string]float64{}}
		for rows.Next() {
			var (
				rt           string
				usage, limit float64
			)
			if err := rows.Scan(&rt, &usage, &limit); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan quota timeline: %w", err)
			}
			point.Values[rt] = limit
			point.Values[rt+"_usage"] = usage
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate quota timeline: %w", err)
		}
		rows.Close()
		points = append(points, point)
	}

	return points, nil
}

// CreationTimeStatistics counts entities of one type created within each
// bucket of [from, to).
func (s *StatsService) CreationTimeStatistics(ctx context.Context, entityType string, from, to int64, nBuckets int) ([]timeseries.Bucket, error) {
	var table string
	switch entityType {
	case model.ScopeCustomer:
		table = "customers"
	case model.ScopeProject:
		table = "projects"
	case model.ScopeProjectGroup:
		table = "project_groups"
	default:
		return nil, validationErrorf("creation time statistics: unknown type %q", entityType)
	}
	if nBuckets <= 0 {
		return nil, validationErrorf("creation time statistics: n_buckets must be positive")
	}

	buckets, err := timeseries.Bucketize(nil, from, to, nBuckets)
	if err != nil {
		return nil, validationErrorf("creation time statistics: %v", err)
	}

	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT extract(epoch FROM created_at)::bigint FROM %s
		 WHERE created_at >= to_timestamp($1) AND created_at < to_timestamp($2)`, table),
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("creation time statistics %s: %w", entityType, err)
	}
	defer rows.Close()

	for rows.Next() {
		var createdAt int64
		if err := rows.Scan(&createdAt); err != nil {
			return nil, fmt.Errorf("scan creation time: %w", err)
		}
		for i := range buckets {
			if createdAt >= buckets[i].From && createdAt < buckets[i].To {
				buckets[i].Value++
				break
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate creation times: %w", err)
	}
	return buckets, nil
}

// AlertFilter narrows alert statistics. Zero values mean "no filter"; State
// is one of "", "open", "closed".
type AlertFilter struct {
	ScopeType    string
	ScopeID      string
	ResourceID   string
	AlertType    string
	Acknowledged *bool
	State        string
	From         int64
	To           int64
}

// AlertStatistics counts matching alerts grouped by severity.
func (s *StatsService) AlertStatistics(ctx context.Context, f AlertFilter) (map[string]int64, error) {
	if f.ScopeType != "" && !model.ValidScopeType(f.ScopeType) {
		return nil, validationErrorf("alert statistics: unknown scope type %q", f.ScopeType)
	}
	if f.State != "" && f.State != "open" && f.State != "closed" {
		return nil, validationErrorf("alert statistics: unknown state %q", f.State)
	}

	query := `SELECT severity, COUNT(*) FROM alerts WHERE 1=1`
	args := []any{}
	argIdx := 1

	add := func(clause string, value any) {
		query += fmt.Sprintf(clause, argIdx)
		args = append(args, value)
		argIdx++
	}

	if f.ScopeType != "" {
		add(` AND scope_type = $%d`, f.ScopeType)
	}
	if f.ScopeID != "" {
		add(` AND scope_id = $%d`, f.ScopeID)
	}
	if f.ResourceID != "" {
		add(` AND resource_id = $%d`, f.ResourceID)
	}
	if f.AlertType != "" {
		add(` AND alert_type = $%d`, f.AlertType)
	}
	if f.Acknowledged != nil {
		add(` AND acknowledged = $%d`, *f.Acknowledged)
	}
	switch f.State {
	case "open":
		query += ` AND closed_at IS NULL`
	case "closed":
		query += ` AND closed_at IS NOT NULL`
	}
	if f.From != 0 {
		add(` AND opened_at >= to_timestamp($%d)`, f.From)
	}
	if f.To != 0 {
		add(` AND opened_at < to_timestamp($%d)`, f.To)
	}
	query += ` GROUP BY severity`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("alert statistics: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{
		model.SeverityInfo:     0,
		model.SeverityWarning:  0,
		model.SeverityCritical: 0,
	}
	for rows.Next() {
		var (
			severity string
			count    int64
		)
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("scan alert statistics: %w", err)
		}
		counts[severity] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert statistics: %w", err)
	}
	return counts, nil
}

// CustomerSummary is the per-customer overview: hierarchy counts, open
// alerts, and the customer-level quota rows.
type CustomerSummary struct {
	Customer      model.Customer `json:"customer"`
	Projects      int64          `json:"projects"`
	ProjectGroups int64          `json:"project_groups"`
	Resources     int64          `json:"resources"`
	OpenAlerts    int64          `json:"open_alerts"`
	Quotas        []model.Quota  `json:"quotas"`
}

// Summary builds the summary for every customer.
func (s *StatsService) Summary(ctx context.Context, ledger *LedgerService) ([]CustomerSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT c.id, c.name, c.created_at, c.updated_at,
		        (SELECT COUNT(*) FROM projects p WHERE p.customer_id = c.id),
		        (SELECT COUNT(*) FROM project_groups g WHERE g.customer_id = c.id),
		        (SELECT COUNT(*) FROM resources r
		         JOIN projects p ON p.id = r.project_id
		         WHERE p.customer_id = c.id AND r.state NOT IN ($1, $2)),
		        (SELECT COUNT(*) FROM alerts a
		         WHERE a.scope_type = $3 AND a.scope_id = c.id AND a.closed_at IS NULL)
		 FROM customers c ORDER BY c.id`,
		model.StateDeleted, model.StateErred, model.ScopeCustomer,
	)
	if err != nil {
		return nil, fmt.Errorf("customer summary: %w", err)
	}
	defer rows.Close()

	var summaries []CustomerSummary
	for rows.Next() {
		var cs CustomerSummary
		if err := rows.Scan(&cs.Customer.ID, &cs.Customer.Name, &cs.Customer.CreatedAt, &cs.Customer.UpdatedAt,
			&cs.Projects, &cs.ProjectGroups, &cs.Resources, &cs.OpenAlerts); err != nil {
			return nil, fmt.Errorf("scan customer summary: %w", err)
		}
		summaries = append(summaries, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customer summaries: %w", err)
	}

	for i := range summaries {
		quotas, err := ledger.ListByScope(ctx, model.ScopeCustomer, summaries[i].Customer.ID)
		if err != nil {
			return nil, err
		}
		summaries[i].Quotas = quotas
	}
	return summaries, nil
}

// ResourceStats aggregates the live resources of one backend.
type ResourceStats struct {
	Backend string           `json:"backend"`
	Count   int64            `json:"count"`
	Figures model.Figures    `json:"figures"`
	ByState map[string]int64 `json:"by_state"`
}

// ResourceStatistics sums live resource figures for one backend reference.
func (s *StatsService) ResourceStatistics(ctx context.Context, backend string) (*ResourceStats, error) {
	if backend == "" {
		return nil, validationErrorf("resource statistics: backend is required")
	}

	stats := &ResourceStats{Backend: backend, ByState: map[string]int64{}}
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(vcpu), 0), COALESCE(SUM(ram_mb), 0), COALESCE(SUM(storage_mb), 0)
		 FROM resources WHERE backend = $1 AND state NOT IN ($2, $3)`,
		backend, model.StateDeleted, model.StateErred,
	).Scan(&stats.Count, &stats.Figures.VCPU, &stats.Figures.RAMMB, &stats.Figures.StorageMB)
	if err != nil {
		return nil, fmt.Errorf("resource statistics %s: %w", backend, err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT state, COUNT(*) FROM resources WHERE backend = $1 GROUP BY state`, backend)
	if err != nil {
		return nil, fmt.Errorf("resource state counts %s: %w", backend, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			state string
			count int64
		)
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan resource state count: %w", err)
		}
		stats.ByState[state] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resource state counts: %w", err)
	}
	return stats, nil
}
