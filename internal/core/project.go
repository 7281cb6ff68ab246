package core

import (
	"context"
	"fmt"

	"github.com/edvin/metering/internal/model"
)

type ProjectService struct {
	db     DB
	ledger *LedgerService
}

func NewProjectService(db DB, ledger *LedgerService) *ProjectService {
	return &ProjectService{db: db, ledger: ledger}
}

func (s *ProjectService) Create(ctx context.Context, project *model.Project) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO projects (id, customer_id, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		project.ID, project.CustomerID, project.Name, project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}

	if err := s.ledger.EnsureScopeQuotas(ctx, model.ScopeProject, project.ID); err != nil {
		return fmt.Errorf("create project quotas: %w", err)
	}
	return nil
}

func (s *ProjectService) GetByID(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := s.db.QueryRow(ctx,
		`SELECT id, customer_id, name, created_at, updated_at FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.CustomerID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return &p, nil
}

func (s *ProjectService) ListByCustomer(ctx context.Context, customerID string) ([]model.Project, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, customer_id, name, created_at, updated_at
		 FROM projects WHERE customer_id = $1 ORDER BY id`, customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list projects for customer %s: %w", customerID, err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.CustomerID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// Delete removes a project, its group memberships and its quota records.
// Resources must already be terminal; the foreign keys enforce ordering.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM project_group_projects WHERE project_id = $1`, id); err != nil {
		return fmt.Errorf("delete project group memberships %s: %w", id, err)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	return s.ledger.DropScopeQuotas(ctx, model.ScopeProject, id)
}
