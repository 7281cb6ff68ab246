package request

// SetQuotaLimit updates one quota's limit. A null limit means unlimited.
type SetQuotaLimit struct {
	Limit *int64 `json:"limit" validate:"omitempty,min=0"`
}

// CheckQuota asks whether a figure delta would fit within the limits of a
// scope chain. Negative deltas are allowed; they always fit.
type CheckQuota struct {
	VCPU      int64 `json:"vcpu"`
	RAMMB     int64 `json:"ram_mb"`
	StorageMB int64 `json:"storage_mb"`
}
