package core

import (
	"github.com/rs/zerolog"

	"github.com/edvin/metering/internal/config"
	"github.com/edvin/metering/internal/monitoring"
)

type Services struct {
	Ledger       *LedgerService
	Event        *EventService
	Reconcile    *ReconcileService
	Customer     *CustomerService
	Project      *ProjectService
	ProjectGroup *ProjectGroupService
	Resource     *ResourceService
	Alert        *AlertService
	Sample       *SampleService
	Snapshot     *SnapshotService
	Stats        *StatsService
}

func NewServices(db DB, source monitoring.Source, defaults config.DefaultLimits, failSilently bool, logger zerolog.Logger) *Services {
	ledger := NewLedgerService(db, defaults)
	resources := NewResourceService(db)
	return &Services{
		Ledger:       ledger,
		Event:        NewEventService(db, ledger, logger),
		Reconcile:    NewReconcileService(db, logger),
		Customer:     NewCustomerService(db, ledger),
		Project:      NewProjectService(db, ledger),
		ProjectGroup: NewProjectGroupService(db, ledger),
		Resource:     resources,
		Alert:        NewAlertService(db),
		Sample:       NewSampleService(db, resources, source, logger),
		Snapshot:     NewSnapshotService(db),
		Stats:        NewStatsService(db, resources, source, failSilently, logger),
	}
}
