package request

// SubmitEvent is a lifecycle event reported by a provisioning backend.
type SubmitEvent struct {
	ResourceID string `json:"resource_id" validate:"required"`
	ProjectID  string `json:"project_id" validate:"required"`
	Kind       string `json:"kind"`
	Backend    string `json:"backend"`
	Transition string `json:"transition" validate:"required,transition"`
	VCPU       int64  `json:"vcpu" validate:"min=0"`
	RAMMB      int64  `json:"ram_mb" validate:"min=0"`
	StorageMB  int64  `json:"storage_mb" validate:"min=0"`
	Sequence   int64  `json:"sequence" validate:"required,min=1"`
	OccurredAt int64  `json:"occurred_at"`
}
