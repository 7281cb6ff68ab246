package model

// Scope types quotas and statistics are reported against.
const (
	ScopeCustomer     = "customer"
	ScopeProject      = "project"
	ScopeProjectGroup = "project_group"
)

// ScopeRef identifies one hierarchy node.
type ScopeRef struct {
	Type string `json:"scope_type"`
	ID   string `json:"scope_id"`
}

// ValidScopeType reports whether t names a known scope type.
func ValidScopeType(t string) bool {
	switch t {
	case ScopeCustomer, ScopeProject, ScopeProjectGroup:
		return true
	}
	return false
}
