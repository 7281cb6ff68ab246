package model

import "time"

// Lifecycle transitions carried on events from resource backends.
const (
	TransitionProvisioning = "provisioning"
	TransitionActive       = "active"
	TransitionResizing     = "resizing"
	TransitionDeleting     = "deleting"
	TransitionDeleted      = "deleted"
	TransitionErred        = "erred"
)

// TerminalTransition reports whether the transition releases the resource's
// consumption figures.
func TerminalTransition(t string) bool {
	return t == TransitionDeleting || t == TransitionDeleted || t == TransitionErred
}

// ValidTransition reports whether t names a known lifecycle transition.
func ValidTransition(t string) bool {
	switch t {
	case TransitionProvisioning, TransitionActive, TransitionResizing,
		TransitionDeleting, TransitionDeleted, TransitionErred:
		return true
	}
	return false
}

// LifecycleEvent is one consumption-relevant state change of a resource.
// Sequence numbers are per-resource and must increase by exactly one.
type LifecycleEvent struct {
	ResourceID string    `json:"resource_id"`
	ProjectID  string    `json:"project_id"`
	Kind       string    `json:"kind"`
	Backend    string    `json:"backend"`
	Transition string    `json:"transition"`
	Figures    Figures   `json:"figures"`
	Sequence   int64     `json:"sequence"`
	OccurredAt time.Time `json:"occurred_at"`
}
