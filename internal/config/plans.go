package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// QuotaPlans assigns storage limits to owners. A new ledger row starts with
// the owner's plan limit, or Default when the owner has no plan.
//
//	default: 16106127360
//	plans:
//	  pro: 107374182400
//	owners:
//	  user-123: pro
type QuotaPlans struct {
	Default int64             `yaml:"default"`
	Plans   map[string]int64  `yaml:"plans"`
	Owners  map[string]string `yaml:"owners"`
}

// LimitFor returns the limit for an owner (0 = unlimited)
func (p *QuotaPlans) LimitFor(ownerID string) int64 {
	if plan, ok := p.Owners[ownerID]; ok {
		if limit, ok := p.Plans[plan]; ok {
			return limit
		}
	}
	return p.Default
}

// LoadQuotaPlans reads the plan file, or returns plans with only the default
// when path is empty
func LoadQuotaPlans(path string, defaultLimit int64) (*QuotaPlans, error) {
	plans := &QuotaPlans{Default: defaultLimit}
	if path == "" {
		return plans, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quota plans: %w", err)
	}
	if err := yaml.Unmarshal(data, plans); err != nil {
		return nil, fmt.Errorf("parse quota plans: %w", err)
	}

	if plans.Default < 0 {
		return nil, fmt.Errorf("quota plans: negative default")
	}
	for name, limit := range plans.Plans {
		if limit < 0 {
			return nil, fmt.Errorf("quota plans: plan %q has a negative limit", name)
		}
	}
	for owner, plan := range plans.Owners {
		if _, ok := plans.Plans[plan]; !ok {
			return nil, fmt.Errorf("quota plans: owner %q uses unknown plan %q", owner, plan)
		}
	}
	return plans, nil
}
