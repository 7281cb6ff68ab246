package core

import (
	"context"
	"fmt"

	"github.com/edvin/metering/internal/model"
)

// ResourceService reads resource records. Writes happen exclusively through
// the lifecycle event processor.
type ResourceService struct {
	db DB
}

func NewResourceService(db DB) *ResourceService {
	return &ResourceService{db: db}
}

const resourceColumns = `id, project_id, kind, backend, state, vcpu, ram_mb, storage_mb, last_sequence, created_at, updated_at`

func scanResource(row interface{ Scan(dest ...any) error }) (*model.Resource, error) {
	var r model.Resource
	err := row.Scan(&r.ID, &r.ProjectID, &r.Kind, &r.Backend, &r.State,
		&r.Figures.VCPU, &r.Figures.RAMMB, &r.Figures.StorageMB,
		&r.LastSequence, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *ResourceService) GetByID(ctx context.Context, id string) (*model.Resource, error) {
	r, err := scanResource(s.db.QueryRow(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get resource %s: %w", id, err)
	}
	return r, nil
}

func (s *ResourceService) ListByProject(ctx context.Context, projectID string) ([]model.Resource, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE project_id = $1 ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list resources for project %s: %w", projectID, err)
	}
	defer rows.Close()

	var resources []model.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		resources = append(resources, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return resources, nil
}

// LiveIDsForScope returns the ids of non-terminal resources under a scope
// instance, or of all non-terminal resources of a scope type when scopeID is
// empty. Used by the aggregation queries to resolve which resources to fetch
// samples for.
func (s *ResourceService) LiveIDsForScope(ctx context.Context, scopeType, scopeID string) ([]string, error) {
	var (
		query string
		args  []any
	)
	if scopeID == "" {
		query = `SELECT id FROM resources WHERE state NOT IN ($1, $2) ORDER BY id`
		args = []any{model.StateDeleted, model.StateErred}
	} else {
		query = `SELECT r.id FROM resources r
		         JOIN resource_scopes rs ON rs.resource_id = r.id
		         WHERE rs.scope_type = $1 AND rs.scope_id = $2 AND r.state NOT IN ($3, $4)
		         ORDER BY r.id`
		args = []any{scopeType, scopeID, model.StateDeleted, model.StateErred}
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list resources for scope %s/%s: %w", scopeType, scopeID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan resource id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resource ids: %w", err)
	}
	return ids, nil
}
