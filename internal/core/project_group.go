package core

import (
	"context"
	"fmt"

	"github.com/edvin/metering/internal/model"
)

// ProjectGroupService manages project groups and the many-to-many overlay
// between groups and projects. Membership changes rewrite the affected
// resources' cached ancestor scope lists and move their live usage into or
// out of the group's quotas in the same transaction, keeping the group's
// counters consistent without waiting for reconciliation.
type ProjectGroupService struct {
	db     DB
	ledger *LedgerService
}

func NewProjectGroupService(db DB, ledger *LedgerService) *ProjectGroupService {
	return &ProjectGroupService{db: db, ledger: ledger}
}

func (s *ProjectGroupService) Create(ctx context.Context, group *model.ProjectGroup) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO project_groups (id, customer_id, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		group.ID, group.CustomerID, group.Name, group.CreatedAt, group.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert project group: %w", err)
	}

	if err := s.ledger.EnsureScopeQuotas(ctx, model.ScopeProjectGroup, group.ID); err != nil {
		return fmt.Errorf("create project group quotas: %w", err)
	}
	return nil
}

func (s *ProjectGroupService) GetByID(ctx context.Context, id string) (*model.ProjectGroup, error) {
	var g model.ProjectGroup
	err := s.db.QueryRow(ctx,
		`SELECT id, customer_id, name, created_at, updated_at FROM project_groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.CustomerID, &g.Name, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get project group %s: %w", id, err)
	}
	return &g, nil
}

func (s *ProjectGroupService) ListByCustomer(ctx context.Context, customerID string) ([]model.ProjectGroup, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, customer_id, name, created_at, updated_at
		 FROM project_groups WHERE customer_id = $1 ORDER BY id`, customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list project groups for customer %s: %w", customerID, err)
	}
	defer rows.Close()

	var groups []model.ProjectGroup
	for rows.Next() {
		var g model.ProjectGroup
		if err := rows.Scan(&g.ID, &g.CustomerID, &g.Name, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project groups: %w", err)
	}
	return groups, nil
}

// AddProject adds a project to a group: records the membership, extends the
// cached ancestor lists of the project's resources, and credits the live
// usage of those resources to the group's quotas.
func (s *ProjectGroupService) AddProject(ctx context.Context, groupID, projectID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin add project to group: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO project_group_projects (project_group_id, project_id)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		groupID, projectID,
	)
	if err != nil {
		return fmt.Errorf("insert group membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already a member.
		return tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO resource_scopes (resource_id, scope_type, scope_id)
		 SELECT r.id, $1, $2 FROM resources r WHERE r.project_id = $3
		 ON CONFLICT DO NOTHING`,
		model.ScopeProjectGroup, groupID, projectID,
	)
	if err != nil {
		return fmt.Errorf("extend resource scopes: %w", err)
	}

	deltas, err := liveProjectUsage(ctx, tx, projectID, 1)
	if err != nil {
		return err
	}
	scope := []model.ScopeRef{{Type: model.ScopeProjectGroup, ID: groupID}}
	if err := s.ledger.applyBatch(ctx, tx, scope, deltas); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit add project to group: %w", err)
	}
	return nil
}

// RemoveProject is the inverse of AddProject.
func (s *ProjectGroupService) RemoveProject(ctx context.Context, groupID, projectID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin remove project from group: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`DELETE FROM project_group_projects WHERE project_group_id = $1 AND project_id = $2`,
		groupID, projectID,
	)
	if err != nil {
		return fmt.Errorf("delete group membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM resource_scopes rs
		 USING resources r
		 WHERE rs.resource_id = r.id AND r.project_id = $1
		   AND rs.scope_type = $2 AND rs.scope_id = $3`,
		projectID, model.ScopeProjectGroup, groupID,
	)
	if err != nil {
		return fmt.Errorf("shrink resource scopes: %w", err)
	}

	deltas, err := liveProjectUsage(ctx, tx, projectID, -1)
	if err != nil {
		return err
	}
	scope := []model.ScopeRef{{Type: model.ScopeProjectGroup, ID: groupID}}
	if err := s.ledger.applyBatch(ctx, tx, scope, deltas); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit remove project from group: %w", err)
	}
	return nil
}

// Delete removes a group, its memberships, the matching cached scope entries
// and its quota records.
func (s *ProjectGroupService) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM resource_scopes WHERE scope_type = $1 AND scope_id = $2`,
		model.ScopeProjectGroup, id,
	); err != nil {
		return fmt.Errorf("delete group resource scopes %s: %w", id, err)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM project_group_projects WHERE project_group_id = $1`, id); err != nil {
		return fmt.Errorf("delete group memberships %s: %w", id, err)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM project_groups WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete project group %s: %w", id, err)
	}
	return s.ledger.DropScopeQuotas(ctx, model.ScopeProjectGroup, id)
}

// liveProjectUsage sums the live consumption of one project's resources,
// signed for credit or debit.
func liveProjectUsage(ctx context.Context, tx queryRower, projectID string, sign int64) (map[string]int64, error) {
	var vcpu, ram, storage, instances int64
	err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(vcpu), 0), COALESCE(SUM(ram_mb), 0),
		        COALESCE(SUM(storage_mb), 0), COUNT(id)
		 FROM resources WHERE project_id = $1 AND state IN ($2, $3)`,
		projectID, model.StateProvisioning, model.StateActive,
	).Scan(&vcpu, &ram, &storage, &instances)
	if err != nil {
		return nil, fmt.Errorf("sum live usage for project %s: %w", projectID, err)
	}
	return map[string]int64{
		model.ResourceVCPU:         sign * vcpu,
		model.ResourceRAM:          sign * ram,
		model.ResourceStorage:      sign * storage,
		model.ResourceMaxInstances: sign * instances,
	}, nil
}
