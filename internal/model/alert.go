package model

import "time"

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is produced by external monitoring rules and only aggregated here.
// It references either a scope or a single resource within a scope.
type Alert struct {
	ID           string     `json:"id"`
	ScopeType    string     `json:"scope_type"`
	ScopeID      string     `json:"scope_id"`
	ResourceID   *string    `json:"resource_id"`
	AlertType    string     `json:"alert_type"`
	Severity     string     `json:"severity"`
	Acknowledged bool       `json:"acknowledged"`
	OpenedAt     time.Time  `json:"opened_at"`
	ClosedAt     *time.Time `json:"closed_at"`
}
