// Package profile applies named stack profiles to a base configuration.
//
// A profile is an advisory preset: it enables or disables optional step
// groups. Resolution never mutates the base configuration and never fails:
// an unknown profile name is a logged warning, not an error.
//
// Safety invariant: critical steps can never be profiled out. A profile that
// disables a group containing a critical step has that step's group override
// discarded for the critical member (the rest of the group stays disabled).
package profile

import (
	"stackpilot/internal/config"
	"stackpilot/internal/logging"
)

// Resolve merges the named profile's group overrides onto a copy of base.
//
// An empty name or an unknown profile returns the base configuration
// unchanged (unknown names log a warning). The returned configuration is the
// immutable snapshot the rest of the run operates on.
func Resolve(base *config.Config, name string, log *logging.Logger) *config.Config {
	if name == "" {
		return base
	}

	p, ok := base.Profiles[name]
	if !ok {
		log.Warnf("unknown profile %q, running with base configuration", name)
		return base
	}

	resolved := base.Clone()
	for group, enabled := range p.Groups {
		if !enabled && groupHasCritical(base, group) {
			log.Warnf("profile %q tries to disable group %q which contains a critical step; keeping critical steps enabled", name, group)
			disableNonCritical(resolved, group)
			continue
		}
		resolved.Groups[group] = enabled
	}

	log.Infof("applied profile %q", name)
	return resolved
}

// groupHasCritical reports whether any step in the group is critical.
func groupHasCritical(cfg *config.Config, group string) bool {
	for _, s := range cfg.Steps {
		if s.Group == group && s.Critical {
			return true
		}
	}
	return false
}

// disableNonCritical moves the group's critical steps out of the group on the
// resolved copy, then disables the group. Criticals keep running; everything
// else in the group is excluded.
func disableNonCritical(cfg *config.Config, group string) {
	for i := range cfg.Steps {
		if cfg.Steps[i].Group == group && cfg.Steps[i].Critical {
			cfg.Steps[i].Group = ""
		}
	}
	cfg.Groups[group] = false
}
