package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/metering/internal/metrics"
	"github.com/edvin/metering/internal/model"
)

// EventService translates resource lifecycle events into ledger adjustments.
// Each event is applied exactly once: the per-resource sequence gate and the
// ledger batch commit in the same transaction, so an event is either fully
// counted in every ancestor scope or not at all. Rejected events surface as
// ErrOutOfOrderEvent / ErrQuotaRecordMissing for the caller to retry with
// backoff; they are never dropped.
type EventService struct {
	db     DB
	ledger *LedgerService
	logger zerolog.Logger
}

func NewEventService(db DB, ledger *LedgerService, logger zerolog.Logger) *EventService {
	return &EventService{db: db, ledger: ledger, logger: logger}
}

// ApplyEvent validates and applies one lifecycle event. A true duplicate
// result acknowledges an already-seen sequence number without any ledger
// effect, so reporters can tell an ack from an application.
func (s *EventService) ApplyEvent(ctx context.Context, ev *model.LifecycleEvent) (duplicate bool, err error) {
	if err := validateEvent(ev); err != nil {
		metrics.EventsRejected.WithLabelValues("validation").Inc()
		return false, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin apply event: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		state        string
		stored       model.Figures
		lastSequence int64
	)
	err = tx.QueryRow(ctx,
		`SELECT state, vcpu, ram_mb, storage_mb, last_sequence
		 FROM resources WHERE id = $1 FOR UPDATE`,
		ev.ResourceID,
	).Scan(&state, &stored.VCPU, &stored.RAMMB, &stored.StorageMB, &lastSequence)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if err := s.applyFirstEvent(ctx, tx, ev); err != nil {
			return false, err
		}
	case err != nil:
		return false, fmt.Errorf("load resource %s: %w", ev.ResourceID, err)
	default:
		if ev.Sequence <= lastSequence {
			// Already applied. Redelivery is expected; acknowledge without
			// touching the ledger.
			metrics.EventsRejected.WithLabelValues("duplicate").Inc()
			s.logger.Debug().
				Str("resource", ev.ResourceID).
				Int64("sequence", ev.Sequence).
				Int64("lastSequence", lastSequence).
				Msg("duplicate lifecycle event acknowledged")
			return true, nil
		}
		if ev.Sequence != lastSequence+1 {
			metrics.EventsRejected.WithLabelValues("out_of_order").Inc()
			return false, fmt.Errorf("event %s seq %d after %d: %w",
				ev.ResourceID, ev.Sequence, lastSequence, ErrOutOfOrderEvent)
		}
		if err := s.applyFollowupEvent(ctx, tx, ev, state, stored); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit apply event: %w", err)
	}

	metrics.EventsApplied.WithLabelValues(ev.Transition).Inc()
	s.logger.Debug().
		Str("resource", ev.ResourceID).
		Str("transition", ev.Transition).
		Int64("sequence", ev.Sequence).
		Msg("lifecycle event applied")
	return false, nil
}

// applyFirstEvent handles an event for an unknown resource: only a
// provisioning event with sequence 1 may create the resource record and its
// cached ancestor scope list. Anything else is treated as out of order (the
// creation event may still be in flight).
func (s *EventService) applyFirstEvent(ctx context.Context, tx pgx.Tx, ev *model.LifecycleEvent) error {
	if ev.Sequence != 1 || ev.Transition != model.TransitionProvisioning {
		metrics.EventsRejected.WithLabelValues("out_of_order").Inc()
		return fmt.Errorf("event for unknown resource %s (seq %d, %s): %w",
			ev.ResourceID, ev.Sequence, ev.Transition, ErrOutOfOrderEvent)
	}

	scopes, err := ancestorScopes(ctx, tx, ev.ProjectID)
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = tx.Exec(ctx,
		`INSERT INTO resources (id, project_id, kind, backend, state, vcpu, ram_mb, storage_mb, last_sequence, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $9)`,
		ev.ResourceID, ev.ProjectID, ev.Kind, ev.Backend, model.StateProvisioning,
		ev.Figures.VCPU, ev.Figures.RAMMB, ev.Figures.StorageMB, now,
	)
	if err != nil {
		return fmt.Errorf("insert resource %s: %w", ev.ResourceID, err)
	}

	for _, scope := range scopes {
		_, err := tx.Exec(ctx,
			`INSERT INTO resource_scopes (resource_id, scope_type, scope_id) VALUES ($1, $2, $3)`,
			ev.ResourceID, scope.Type, scope.ID,
		)
		if err != nil {
			return fmt.Errorf("insert resource scope %s/%s: %w", scope.Type, scope.ID, err)
		}
	}

	deltas := figureDeltas(ev.Figures, 1)
	deltas[model.ResourceMaxInstances] = 1
	return s.ledger.applyBatch(ctx, tx, scopes, deltas)
}

// applyFollowupEvent applies an event for a known resource. The sequence gate
// has already passed; the stored figures decide the delta so replays of a
// terminal release can never double-subtract.
func (s *EventService) applyFollowupEvent(ctx context.Context, tx pgx.Tx, ev *model.LifecycleEvent, state string, stored model.Figures) error {
	scopes, err := resourceScopes(ctx, tx, ev.ResourceID)
	if err != nil {
		return err
	}

	released := state == model.StateDeleting || model.TerminalState(state)

	var deltas map[string]int64
	newState := state
	newFigures := stored

	switch {
	case released:
		// Consumption was already released; later events only advance the
		// sequence and settle the final state.
		deltas = map[string]int64{}
		if model.TerminalTransition(ev.Transition) {
			newState = storedState(ev.Transition)
		}
	case model.TerminalTransition(ev.Transition):
		deltas = figureDeltas(stored, -1)
		deltas[model.ResourceMaxInstances] = -1
		newState = storedState(ev.Transition)
		newFigures = model.Figures{}
	default:
		deltas = map[string]int64{
			model.ResourceVCPU:    ev.Figures.VCPU - stored.VCPU,
			model.ResourceRAM:     ev.Figures.RAMMB - stored.RAMMB,
			model.ResourceStorage: ev.Figures.StorageMB - stored.StorageMB,
		}
		newState = storedState(ev.Transition)
		newFigures = ev.Figures
	}

	if err := s.ledger.applyBatch(ctx, tx, scopes, deltas); err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE resources
		 SET state = $1, vcpu = $2, ram_mb = $3, storage_mb = $4, last_sequence = $5, updated_at = now()
		 WHERE id = $6`,
		newState, newFigures.VCPU, newFigures.RAMMB, newFigures.StorageMB, ev.Sequence, ev.ResourceID,
	)
	if err != nil {
		return fmt.Errorf("update resource %s: %w", ev.ResourceID, err)
	}
	return nil
}

// storedState maps a transition onto the persisted lifecycle state.
// Resizing keeps the resource active.
func storedState(transition string) string {
	if transition == model.TransitionResizing {
		return model.StateActive
	}
	return transition
}

func validateEvent(ev *model.LifecycleEvent) error {
	if ev.ResourceID == "" {
		return validationErrorf("event: resource_id is required")
	}
	if ev.ProjectID == "" {
		return validationErrorf("event: project_id is required")
	}
	if !model.ValidTransition(ev.Transition) {
		return validationErrorf("event: unknown transition %q", ev.Transition)
	}
	if ev.Sequence < 1 {
		return validationErrorf("event: sequence must be positive, got %d", ev.Sequence)
	}
	if ev.Figures.VCPU < 0 || ev.Figures.RAMMB < 0 || ev.Figures.StorageMB < 0 {
		return validationErrorf("event: negative consumption figures")
	}
	return nil
}

// ancestorScopes computes the cached ancestor scope list for a resource being
// created under the given project: the project itself, its owning customer,
// and every project group the project belongs to. The missing project is a
// retryable condition, not a validation failure: hierarchy sync may lag
// behind the resource backend.
func ancestorScopes(ctx context.Context, tx pgx.Tx, projectID string) ([]model.ScopeRef, error) {
	var customerID string
	err := tx.QueryRow(ctx,
		`SELECT customer_id FROM projects WHERE id = $1`, projectID,
	).Scan(&customerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrQuotaRecordMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve project %s: %w", projectID, err)
	}

	scopes := []model.ScopeRef{
		{Type: model.ScopeProject, ID: projectID},
		{Type: model.ScopeCustomer, ID: customerID},
	}

	rows, err := tx.Query(ctx,
		`SELECT project_group_id FROM project_group_projects WHERE project_id = $1`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("resolve project groups for %s: %w", projectID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var groupID string
		if err := rows.Scan(&groupID); err != nil {
			return nil, fmt.Errorf("scan project group: %w", err)
		}
		scopes = append(scopes, model.ScopeRef{Type: model.ScopeProjectGroup, ID: groupID})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project groups: %w", err)
	}
	return scopes, nil
}

// resourceScopes loads the ancestor scope list cached at resource creation.
func resourceScopes(ctx context.Context, tx pgx.Tx, resourceID string) ([]model.ScopeRef, error) {
	rows, err := tx.Query(ctx,
		`SELECT scope_type, scope_id FROM resource_scopes WHERE resource_id = $1`, resourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("load scopes for %s: %w", resourceID, err)
	}
	defer rows.Close()

	var scopes []model.ScopeRef
	for rows.Next() {
		var scope model.ScopeRef
		if err := rows.Scan(&scope.Type, &scope.ID); err != nil {
			return nil, fmt.Errorf("scan resource scope: %w", err)
		}
		scopes = append(scopes, scope)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resource scopes: %w", err)
	}
	return scopes, nil
}
