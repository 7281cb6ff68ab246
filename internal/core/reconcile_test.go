package core

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/metering/internal/model"
)

func TestReconcileCorrectsDrift(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()

	applyOK(t, f.events, provisionEvent("r1", "p1", model.Figures{VCPU: 1, RAMMB: 1024, StorageMB: 10}))
	applyOK(t, f.events, provisionEvent("r2", "p2", model.Figures{VCPU: 3, RAMMB: 2048, StorageMB: 20}))

	// Simulate a missed release event: the resource is gone but its usage
	// was never subtracted.
	f.db.state.resources["r2"].state = model.StateDeleted
	f.db.state.resources["r2"].figures = model.Figures{}

	reconciler := NewReconcileService(f.db, zerolog.Nop())
	report, err := reconciler.Run(ctx)
	require.NoError(t, err)

	// vcpu, ram, storage and max_instances drifted on p2, g1 and c1.
	assert.Equal(t, 16, report.QuotasChecked)
	assert.Equal(t, 12, report.Corrections)
	assert.Positive(t, report.TotalDrift)

	assert.Equal(t, int64(0), f.db.usage(model.ScopeProject, "p2", model.ResourceVCPU))
	assert.Equal(t, int64(1), f.db.usage(model.ScopeProjectGroup, "g1", model.ResourceVCPU))
	assert.Equal(t, int64(1), f.db.usage(model.ScopeCustomer, "c1", model.ResourceVCPU))
	assert.Equal(t, int64(1), f.db.usage(model.ScopeCustomer, "c1", model.ResourceMaxInstances))

	// A clean ledger produces no corrections.
	report, err = reconciler.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Corrections)
	assert.Zero(t, report.TotalDrift)
}

func TestReconcileZeroesOrphanedUsage(t *testing.T) {
	db := newFakeDB()
	db.addCustomer("c1")
	ledger := NewLedgerService(db, nil)
	require.NoError(t, ledger.EnsureScopeQuotas(context.Background(), model.ScopeCustomer, "c1"))
	db.quota(model.ScopeCustomer, "c1", model.ResourceVCPU).usage = 42

	reconciler := NewReconcileService(db, zerolog.Nop())
	report, err := reconciler.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Corrections)
	assert.Equal(t, int64(42), report.TotalDrift)
	assert.Equal(t, int64(0), db.usage(model.ScopeCustomer, "c1", model.ResourceVCPU))
}

func TestReconcileStopsOnCancelledContext(t *testing.T) {
	db := newFakeDB()
	db.addCustomer("c1")
	ledger := NewLedgerService(db, nil)
	require.NoError(t, ledger.EnsureScopeQuotas(context.Background(), model.ScopeCustomer, "c1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reconciler := NewReconcileService(db, zerolog.Nop())
	_, err := reconciler.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
