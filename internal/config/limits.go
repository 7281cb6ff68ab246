package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultLimits maps scope type -> resource type -> default quota limit,
// applied when quota rows are lazily created for a new scope. A missing entry
// means unlimited.
type DefaultLimits map[string]map[string]int64

// LoadDefaultLimits reads the default-limit policy from the given YAML file.
// An empty path yields an empty policy (every new quota unlimited).
//
// Example file:
//
//	project:
//	  vcpu: 64
//	  ram: 131072
//	  max_instances: 30
//	customer:
//	  vcpu: 256
func LoadDefaultLimits(path string) (DefaultLimits, error) {
	if path == "" {
		return DefaultLimits{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read default limits: %w", err)
	}

	var limits DefaultLimits
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return nil, fmt.Errorf("parse default limits: %w", err)
	}
	if limits == nil {
		limits = DefaultLimits{}
	}
	return limits, nil
}

// For returns the default limit for the given scope/resource type, or nil
// when the policy does not constrain it.
func (d DefaultLimits) For(scopeType, resourceType string) *int64 {
	if byType, ok := d[scopeType]; ok {
		if limit, ok := byType[resourceType]; ok {
			return &limit
		}
	}
	return nil
}
