package core

import (
	"context"
	"fmt"

	"github.com/edvin/metering/internal/model"
)

type CustomerService struct {
	db     DB
	ledger *LedgerService
}

func NewCustomerService(db DB, ledger *LedgerService) *CustomerService {
	return &CustomerService{db: db, ledger: ledger}
}

func (s *CustomerService) Create(ctx context.Context, customer *model.Customer) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO customers (id, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)`,
		customer.ID, customer.Name, customer.CreatedAt, customer.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}

	if err := s.ledger.EnsureScopeQuotas(ctx, model.ScopeCustomer, customer.ID); err != nil {
		return fmt.Errorf("create customer quotas: %w", err)
	}
	return nil
}

func (s *CustomerService) GetByID(ctx context.Context, id string) (*model.Customer, error) {
	var c model.Customer
	err := s.db.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM customers WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get customer %s: %w", id, err)
	}
	return &c, nil
}

func (s *CustomerService) List(ctx context.Context) ([]model.Customer, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, created_at, updated_at FROM customers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []model.Customer
	for rows.Next() {
		var c model.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return customers, nil
}

// Delete removes a customer and its quota records. Projects and groups must
// be removed first; the foreign keys enforce that.
func (s *CustomerService) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete customer %s: %w", id, err)
	}
	return s.ledger.DropScopeQuotas(ctx, model.ScopeCustomer, id)
}
