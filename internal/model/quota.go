package model

import "time"

// Resource types tracked by the quota ledger.
const (
	ResourceVCPU         = "vcpu"
	ResourceRAM          = "ram"
	ResourceStorage      = "storage"
	ResourceMaxInstances = "max_instances"
)

// ResourceTypes lists every tracked resource type. Scope quota rows are
// created lazily for each of these when a scope is created.
var ResourceTypes = []string{ResourceVCPU, ResourceRAM, ResourceStorage, ResourceMaxInstances}

// ValidResourceType reports whether t names a tracked resource type.
func ValidResourceType(t string) bool {
	for _, known := range ResourceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Quota is a limit/usage pair for one resource type within one scope.
// A nil limit means unlimited.
type Quota struct {
	ScopeType    string `json:"scope_type"`
	ScopeID      string `json:"scope_id"`
	ResourceType string `json:"resource_type"`
	Limit        *int64 `json:"limit"`
	Usage        int64  `json:"usage"`
}

// QuotaSnapshot is a point-in-time copy of a quota row, recorded periodically
// to back timeline queries.
type QuotaSnapshot struct {
	ScopeType    string    `json:"scope_type"`
	ScopeID      string    `json:"scope_id"`
	ResourceType string    `json:"resource_type"`
	Limit        *int64    `json:"limit"`
	Usage        int64     `json:"usage"`
	RecordedAt   time.Time `json:"recorded_at"`
}
