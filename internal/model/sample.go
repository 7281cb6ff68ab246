package model

// Monitored items. Storage and memory values are MiB, cpu is a 0-100
// utilization percentage; normalization happens at the monitoring edge.
const (
	ItemCPU     = "cpu"
	ItemMemory  = "memory"
	ItemStorage = "storage"
)

// ValidItem reports whether item names a monitored item.
func ValidItem(item string) bool {
	switch item {
	case ItemCPU, ItemMemory, ItemStorage:
		return true
	}
	return false
}

// UsageSample is one raw utilization measurement for a resource. Samples are
// immutable once ingested; retention is bounded by the configured history
// window. Timestamp is epoch seconds.
type UsageSample struct {
	ResourceID string  `json:"resource_id"`
	Item       string  `json:"item"`
	Timestamp  int64   `json:"timestamp"`
	Value      float64 `json:"value"`
}
