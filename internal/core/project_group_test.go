package core

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/metering/internal/config"
	"github.com/edvin/metering/internal/model"
)

// groupFixture seeds customer c1 with project p1 and an empty group g1, and
// a live resource r1 in p1.
type groupFixture struct {
	db     *fakeDB
	ledger *LedgerService
	events *EventService
	groups *ProjectGroupService
}

func newGroupFixture(t *testing.T) *groupFixture {
	t.Helper()
	db := newFakeDB()
	db.addCustomer("c1")
	db.addProject("p1", "c1")
	db.addGroup("g1")

	ledger := NewLedgerService(db, config.DefaultLimits{})
	f := &groupFixture{
		db:     db,
		ledger: ledger,
		events: NewEventService(db, ledger, zerolog.Nop()),
		groups: NewProjectGroupService(db, ledger),
	}
	applyOK(t, f.events, provisionEvent("r1", "p1", model.Figures{VCPU: 1, RAMMB: 1024, StorageMB: 10}))
	return f
}

func TestAddProjectFoldsLiveUsageIntoGroup(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()

	require.NoError(t, f.groups.AddProject(ctx, "g1", "p1"))

	assert.Equal(t, int64(1), f.db.usage(model.ScopeProjectGroup, "g1", model.ResourceVCPU))
	assert.Equal(t, int64(1024), f.db.usage(model.ScopeProjectGroup, "g1", model.ResourceRAM))
	assert.Equal(t, int64(1), f.db.usage(model.ScopeProjectGroup, "g1", model.ResourceMaxInstances))
	assert.Contains(t, f.db.state.scopes["r1"], model.ScopeRef{Type: model.ScopeProjectGroup, ID: "g1"})

	// Later lifecycle events on the project's resources now reach the group.
	applyOK(t, f.events, followupEvent("r1", "p1", model.TransitionResizing, 2, model.Figures{VCPU: 2, RAMMB: 1024, StorageMB: 10}))
	assert.Equal(t, int64(2), f.db.usage(model.ScopeProjectGroup, "g1", model.ResourceVCPU))
}

func TestAddProjectIsIdempotent(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()

	require.NoError(t, f.groups.AddProject(ctx, "g1", "p1"))
	require.NoError(t, f.groups.AddProject(ctx, "g1", "p1"))

	assert.Equal(t, int64(1), f.db.usage(model.ScopeProjectGroup, "g1", model.ResourceVCPU))
	assert.Equal(t, []string{"g1"}, f.db.state.memberships["p1"])
}

func TestRemoveProjectReleasesGroupUsage(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()

	require.NoError(t, f.groups.AddProject(ctx, "g1", "p1"))
	require.NoError(t, f.groups.RemoveProject(ctx, "g1", "p1"))

	assert.Equal(t, int64(0), f.db.usage(model.ScopeProjectGroup, "g1", model.ResourceVCPU))
	assert.Equal(t, int64(0), f.db.usage(model.ScopeProjectGroup, "g1", model.ResourceMaxInstances))
	assert.NotContains(t, f.db.state.scopes["r1"], model.ScopeRef{Type: model.ScopeProjectGroup, ID: "g1"})

	// Removing a non-member is a no-op.
	require.NoError(t, f.groups.RemoveProject(ctx, "g1", "p1"))
	assert.Equal(t, int64(0), f.db.usage(model.ScopeProjectGroup, "g1", model.ResourceVCPU))
}

func TestDeleteGroupDropsMembershipsScopesAndQuotas(t *testing.T) {
	f := newGroupFixture(t)
	ctx := context.Background()

	require.NoError(t, f.groups.AddProject(ctx, "g1", "p1"))
	require.NoError(t, f.groups.Delete(ctx, "g1"))

	assert.Empty(t, f.db.state.memberships["p1"])
	assert.NotContains(t, f.db.state.scopes["r1"], model.ScopeRef{Type: model.ScopeProjectGroup, ID: "g1"})

	quotas, err := f.ledger.ListByScope(ctx, model.ScopeProjectGroup, "g1")
	require.NoError(t, err)
	assert.Empty(t, quotas)
}
