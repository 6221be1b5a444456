package config

import (
	"errors"
	"fmt"

	"tradenerd/internal/types"
)

// ErrConfiguration marks configuration that is inconsistent enough to
// prevent session creation. It is checked before any phase runs.
var ErrConfiguration = errors.New("configuration error")

// Validate checks the configuration for inconsistencies that would
// corrupt a session. All failures wrap ErrConfiguration.
func (c *Config) Validate() error {
	if c.Debate.MaxResearchRounds < 1 {
		return fmt.Errorf("%w: max_research_rounds must be >= 1, got %d", ErrConfiguration, c.Debate.MaxResearchRounds)
	}
	if c.Debate.MaxRiskRounds < 1 {
		return fmt.Errorf("%w: max_risk_rounds must be >= 1, got %d", ErrConfiguration, c.Debate.MaxRiskRounds)
	}

	if c.Memory.Alpha < 0 || c.Memory.Alpha > 1 {
		return fmt.Errorf("%w: memory alpha must be in [0,1], got %v", ErrConfiguration, c.Memory.Alpha)
	}
	if c.Memory.Limit < 1 {
		return fmt.Errorf("%w: memory limit must be >= 1, got %d", ErrConfiguration, c.Memory.Limit)
	}
	known := make(map[string]bool)
	for _, col := range types.Collections() {
		known[col] = true
	}
	for col, alpha := range c.Memory.AlphaByCollection {
		if !known[col] {
			return fmt.Errorf("%w: unknown memory collection %q", ErrConfiguration, col)
		}
		if alpha < 0 || alpha > 1 {
			return fmt.Errorf("%w: alpha for collection %q must be in [0,1], got %v", ErrConfiguration, col, alpha)
		}
	}

	for _, name := range c.Analysts.Disabled {
		if !types.Role(name).IsAnalyst() {
			return fmt.Errorf("%w: %q is not an analyst role", ErrConfiguration, name)
		}
	}

	for role, policy := range c.Discovery {
		if !policy.Enabled {
			continue
		}
		for server, sc := range policy.Servers {
			switch sc.Transport {
			case "http", "stdio":
			default:
				return fmt.Errorf("%w: discovery server %s/%s has unsupported transport %q", ErrConfiguration, role, server, sc.Transport)
			}
			if sc.Endpoint == "" {
				return fmt.Errorf("%w: discovery server %s/%s has empty endpoint", ErrConfiguration, role, server)
			}
		}
	}

	return nil
}
