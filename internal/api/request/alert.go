package request

// OpenAlert records an alert raised by an external monitoring rule.
type OpenAlert struct {
	ScopeType  string  `json:"scope_type" validate:"required,scope_type"`
	ScopeID    string  `json:"scope_id" validate:"required"`
	ResourceID *string `json:"resource_id"`
	AlertType  string  `json:"alert_type" validate:"required"`
	Severity   string  `json:"severity" validate:"required,severity"`
}
