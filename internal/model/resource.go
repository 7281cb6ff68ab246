package model

import "time"

// Resource lifecycle states. Resizing is a transition carried on lifecycle
// events, not a stored state.
const (
	StateProvisioning = "provisioning"
	StateActive       = "active"
	StateDeleting     = "deleting"
	StateDeleted      = "deleted"
	StateErred        = "erred"
)

// TerminalState reports whether resources in the given state no longer
// contribute to usage.
func TerminalState(state string) bool {
	return state == StateDeleted || state == StateErred
}

// Figures holds the consumption figures of one resource.
type Figures struct {
	VCPU      int64 `json:"vcpu"`
	RAMMB     int64 `json:"ram_mb"`
	StorageMB int64 `json:"storage_mb"`
}

// Resource is a consumable entity owned by exactly one project. LastSequence
// is the sequence number of the last lifecycle event applied to the ledger
// for this resource.
type Resource struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Kind         string    `json:"kind"`
	Backend      string    `json:"backend"`
	State        string    `json:"state"`
	Figures      Figures   `json:"figures"`
	LastSequence int64     `json:"last_sequence"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
