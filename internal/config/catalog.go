package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xiaot623/improv/internal/domain"
	"github.com/xiaot623/improv/internal/usage"
)

// Catalog is the optional YAML file overriding tier policies and scene
// defaults.
//
//	tiers:
//	  FREEMIUM: {session_limit: 5}
//	  PREMIUM: {exempt: true}
//	scene:
//	  max_turns: 12
//	  phase_boundaries: [3, 9]
type Catalog struct {
	Tiers map[domain.Tier]TierOverride `yaml:"tiers"`
	Scene SceneDefaults                `yaml:"scene"`
}

// TierOverride changes the fields it sets on a built-in tier policy.
type TierOverride struct {
	Exempt       *bool `yaml:"exempt"`
	SessionLimit *int  `yaml:"session_limit"`
}

// SceneDefaults overrides the env-level scene settings when non-zero.
type SceneDefaults struct {
	MaxTurns        int   `yaml:"max_turns"`
	PhaseBoundaries []int `yaml:"phase_boundaries"`
}

// LoadCatalog reads a catalog file. A missing path returns an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	cat := &Catalog{}
	if path == "" {
		return cat, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cat, nil
		}
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	if err := yaml.Unmarshal(data, cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return cat, nil
}

// TierPolicies merges catalog overrides onto the built-in policies field by
// field.
func (c *Catalog) TierPolicies() (map[domain.Tier]usage.TierPolicy, error) {
	policies := usage.DefaultPolicies()
	for name, o := range c.Tiers {
		tier, err := domain.ParseTier(string(name))
		if err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		p := policies[tier]
		if o.Exempt != nil {
			p.Exempt = *o.Exempt
		}
		if o.SessionLimit != nil {
			p.SessionLimit = *o.SessionLimit
		}
		switch {
		case p.Exempt:
			p.SessionLimit = domain.UnlimitedSessions
		case p.SessionLimit < 0:
			return nil, fmt.Errorf("catalog: tier %s is metered and needs a session_limit >= 0", tier)
		}
		policies[tier] = p
	}
	return policies, nil
}

// Apply copies non-zero scene defaults into cfg and revalidates it.
func (c *Catalog) Apply(cfg *Config) error {
	if c.Scene.MaxTurns > 0 {
		cfg.MaxTurns = c.Scene.MaxTurns
	}
	if len(c.Scene.PhaseBoundaries) > 0 {
		cfg.PhaseBoundaries = append([]int(nil), c.Scene.PhaseBoundaries...)
	}
	return cfg.Validate()
}
