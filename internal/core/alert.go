package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/metering/internal/model"
	"github.com/edvin/metering/internal/platform"
)

// AlertService stores alerts raised by external monitoring rules. This core
// never derives alerts from usage itself; it only records, acknowledges,
// closes and counts them.
type AlertService struct {
	db DB
}

func NewAlertService(db DB) *AlertService {
	return &AlertService{db: db}
}

// Open records a new alert, or returns the existing open one when an alert of
// the same type is already open for the same target.
func (s *AlertService) Open(ctx context.Context, alert *model.Alert) (bool, error) {
	var existing model.Alert
	err := s.db.QueryRow(ctx,
		`SELECT id, scope_type, scope_id, resource_id, alert_type, severity, acknowledged, opened_at, closed_at
		 FROM alerts
		 WHERE scope_type = $1 AND scope_id = $2 AND alert_type = $3
		   AND resource_id IS NOT DISTINCT FROM $4 AND closed_at IS NULL`,
		alert.ScopeType, alert.ScopeID, alert.AlertType, alert.ResourceID,
	).Scan(&existing.ID, &existing.ScopeType, &existing.ScopeID, &existing.ResourceID,
		&existing.AlertType, &existing.Severity, &existing.Acknowledged,
		&existing.OpenedAt, &existing.ClosedAt)
	if err == nil {
		*alert = existing
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("find open alert: %w", err)
	}

	alert.ID = platform.NewName("alert")
	if alert.OpenedAt.IsZero() {
		alert.OpenedAt = time.Now()
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO alerts (id, scope_type, scope_id, resource_id, alert_type, severity, acknowledged, opened_at)
		 VALUES ($1, $2, $3, $4, $5, $6, false, $7)`,
		alert.ID, alert.ScopeType, alert.ScopeID, alert.ResourceID,
		alert.AlertType, alert.Severity, alert.OpenedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	return true, nil
}

func (s *AlertService) Acknowledge(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `UPDATE alerts SET acknowledged = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("acknowledge alert %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("acknowledge alert %s: not found", id)
	}
	return nil
}

func (s *AlertService) Close(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE alerts SET closed_at = now() WHERE id = $1 AND closed_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("close alert %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("close alert %s: not found or already closed", id)
	}
	return nil
}
