// Package config provides configuration loading and management for stackpilot.
//
// Configuration is loaded using Viper, supporting a YAML config file and
// environment variable overrides. The package provides a typed, immutable
// model of the installation plan: step definitions, phase membership, stack
// profiles, and the logging/preflight/safety options the engine consults.
//
// Key types:
//   - [Config] is the root configuration container with all settings
//   - [Loader] handles Viper-based loading, first-run template initialization,
//     and schema validation
//   - [StepConfig] defines a single installation step
//   - [PhaseConfig] defines an ordered step group with an optional breakpoint
//   - [Profile] is a named preset enabling/disabling optional step groups
//
// Configuration priority (highest to lowest):
//  1. Environment variables (STACKPILOT_ prefix)
//  2. stackpilot.yaml in the project root
//  3. [DefaultConfig] defaults
//
// A [Config] is built once at startup and never mutated afterward; the profile
// resolver works on a deep copy (see [Config.Clone]).
package config

import "fmt"

// Subject type labels for step identifiers. A step id is "<phase>/<name>".
const idSeparator = "/"

// Config represents the root configuration structure.
//
// This is the main configuration container produced by [Loader.Load] and
// treated as read-only by every downstream component.
type Config struct {
	// Project holds the identity values prompted for on first run.
	Project ProjectConfig `mapstructure:"project"`

	// Steps defines every known installation step, in global execution order.
	Steps []StepConfig `mapstructure:"steps"`

	// Phases lists phases in execution order. Each phase names the steps it
	// owns; membership is validated against Steps on load.
	Phases []PhaseConfig `mapstructure:"phases"`

	// Profiles maps profile names to optional-group overrides.
	Profiles map[string]Profile `mapstructure:"profiles"`

	// Groups is the effective optional-group enablement map after profile
	// resolution. A step whose Group maps to false is excluded from runs.
	// Groups not present are enabled.
	Groups map[string]bool `mapstructure:"groups"`

	// Logging configures event emission and log retention.
	Logging LoggingConfig `mapstructure:"logging"`

	// Preflight configures prerequisite validation and remediation.
	Preflight PreflightConfig `mapstructure:"preflight"`

	// Safety configures the git working-tree guard.
	Safety SafetyConfig `mapstructure:"safety"`

	// State configures ledger behavior (see [StateConfig]).
	State StateConfig `mapstructure:"state"`

	// ResumeMode is "skip" (default: completed steps are skipped) or "force"
	// (completed steps re-run).
	ResumeMode string `mapstructure:"resume_mode"`

	// MaxCommandSeconds is the hard wall-clock timeout for one step.
	MaxCommandSeconds int `mapstructure:"max_command_seconds"`

	// NonInteractive disables all prompting. When set, a missing config file
	// is initialized from the template without questions, and placeholder
	// credential values are rejected instead of prompted for.
	NonInteractive bool `mapstructure:"non_interactive"`
}

// ProjectConfig holds the critical values collected on first run.
type ProjectConfig struct {
	// Name identifies the target project.
	Name string `mapstructure:"name"`

	// InstallRoot is the directory steps operate on. Defaults to ".".
	InstallRoot string `mapstructure:"install_root"`

	// AdminPassword is the initial credential passed to steps that provision
	// accounts. The template ships the sentinel "changeme", which is rejected
	// in non-interactive mode.
	AdminPassword string `mapstructure:"admin_password"`
}

// StepConfig defines a single installation step.
//
// Steps are opaque external executables: the orchestrator knows nothing about
// what a step produces, only how to invoke it and whether it may be disabled.
type StepConfig struct {
	// Phase is the id of the phase this step belongs to.
	Phase string `mapstructure:"phase"`

	// Name is the step name, unique within its phase.
	Name string `mapstructure:"name"`

	// Label is the human-readable description shown in listings.
	Label string `mapstructure:"label"`

	// Command is the argv to execute. Flags (--dry-run, --force, --verbose)
	// are appended by the executor per the collaborator contract.
	Command []string `mapstructure:"command"`

	// Group is the optional-group key used by profiles. Empty means the step
	// does not belong to any optional group and always runs.
	Group string `mapstructure:"group"`

	// Critical marks steps that profiles can never disable.
	Critical bool `mapstructure:"critical"`

	// RequiresKeys lists config keys that must be non-empty before this step
	// may run (e.g. "project.admin_password").
	RequiresKeys []string `mapstructure:"requires_keys"`
}

// ID returns the stable step identifier "<phase>/<name>".
func (s StepConfig) ID() string {
	return s.Phase + idSeparator + s.Name
}

// PhaseConfig defines an ordered group of steps.
type PhaseConfig struct {
	// ID is the stable phase identifier.
	ID string `mapstructure:"id"`

	// Label is the human-readable phase description.
	Label string `mapstructure:"label"`

	// Steps lists the member step ids in execution order.
	Steps []string `mapstructure:"steps"`

	// Breakpoint marks the phase boundary as requiring confirmation before
	// the next phase starts.
	Breakpoint bool `mapstructure:"breakpoint"`

	// Guidance is phase-specific text printed at a breakpoint pause and
	// embedded in the handoff document.
	Guidance string `mapstructure:"guidance"`
}

// Profile is a named preset that enables/disables optional step groups.
type Profile struct {
	// Groups maps optional-group keys to enabled/disabled.
	Groups map[string]bool `mapstructure:"groups"`

	// Recommended marks the profile highlighted in listings.
	Recommended bool `mapstructure:"recommended"`

	// DryRunDefault makes runs under this profile default to preview mode.
	DryRunDefault bool `mapstructure:"dry_run_default"`
}

// LoggingConfig configures event emission.
type LoggingConfig struct {
	// Level is the minimum level emitted: trace, debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Format is "plain" or "json".
	Format string `mapstructure:"format"`

	// RotateAfterDays compresses run logs older than this many days.
	RotateAfterDays int `mapstructure:"rotate_after_days"`

	// CleanupAfterDays deletes run logs older than this many days.
	CleanupAfterDays int `mapstructure:"cleanup_after_days"`
}

// PreflightConfig configures prerequisite validation.
type PreflightConfig struct {
	// Remediate attempts to install missing tools before failing.
	Remediate bool `mapstructure:"remediate"`

	// SkipMissing downgrades missing tools to a warning.
	SkipMissing bool `mapstructure:"skip_missing"`

	// Tools lists the required tools with minimum versions.
	Tools []ToolRequirement `mapstructure:"tools"`
}

// ToolRequirement describes one tool the preflight validator checks.
type ToolRequirement struct {
	// Name is the executable looked up on PATH.
	Name string `mapstructure:"name"`

	// MinVersion is a dotted version string; empty skips the version check.
	MinVersion string `mapstructure:"min_version"`

	// Install is the argv run to remediate a missing/outdated tool.
	// Empty means the tool cannot be auto-installed.
	Install []string `mapstructure:"install"`
}

// SafetyConfig configures the git working-tree guard.
type SafetyConfig struct {
	// GitSafety enables the dirty-worktree check before any step runs.
	GitSafety bool `mapstructure:"git_safety"`

	// AllowDirty permits running against a dirty worktree.
	AllowDirty bool `mapstructure:"allow_dirty"`
}

// StateConfig configures state ledger behavior.
type StateConfig struct {
	// Strict treats corrupt ledger records as fatal instead of skipping them.
	Strict bool `mapstructure:"strict"`
}

// StepByID returns the step definition for an id, or false if unknown.
func (c *Config) StepByID(id string) (StepConfig, bool) {
	for _, s := range c.Steps {
		if s.ID() == id {
			return s, true
		}
	}
	return StepConfig{}, false
}

// PhaseByID returns the phase definition for an id, or false if unknown.
func (c *Config) PhaseByID(id string) (PhaseConfig, bool) {
	for _, p := range c.Phases {
		if p.ID == id {
			return p, true
		}
	}
	return PhaseConfig{}, false
}

// GroupEnabled reports whether an optional group is enabled. Unlisted groups
// and the empty group are always enabled.
func (c *Config) GroupEnabled(group string) bool {
	if group == "" {
		return true
	}
	enabled, ok := c.Groups[group]
	if !ok {
		return true
	}
	return enabled
}

// EnabledSteps returns the phase's step definitions in order, excluding steps
// whose optional group is disabled by the effective Groups map.
func (c *Config) EnabledSteps(phaseID string) ([]StepConfig, error) {
	ph, ok := c.PhaseByID(phaseID)
	if !ok {
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown phase: %s", phaseID)}
	}

	steps := make([]StepConfig, 0, len(ph.Steps))
	for _, id := range ph.Steps {
		def, ok := c.StepByID(id)
		if !ok {
			return nil, &ConfigError{Reason: fmt.Sprintf("phase %s references unknown step: %s", phaseID, id)}
		}
		if !c.GroupEnabled(def.Group) {
			continue
		}
		steps = append(steps, def)
	}
	return steps, nil
}

// TotalEnabledSteps counts every enabled step across all phases.
func (c *Config) TotalEnabledSteps() int {
	total := 0
	for _, ph := range c.Phases {
		steps, err := c.EnabledSteps(ph.ID)
		if err != nil {
			continue
		}
		total += len(steps)
	}
	return total
}

// ConfigValue resolves a dotted config key used by RequiresKeys.
// Only the project.* keys are addressable; unknown keys resolve empty.
func (c *Config) ConfigValue(key string) string {
	switch key {
	case "project.name":
		return c.Project.Name
	case "project.install_root":
		return c.Project.InstallRoot
	case "project.admin_password":
		return c.Project.AdminPassword
	}
	return ""
}

// Clone returns a deep copy of the configuration.
//
// The profile resolver mutates the copy's Groups map; the original snapshot
// is never touched after load.
func (c *Config) Clone() *Config {
	out := *c

	out.Steps = make([]StepConfig, len(c.Steps))
	copy(out.Steps, c.Steps)
	for i := range out.Steps {
		out.Steps[i].Command = append([]string(nil), c.Steps[i].Command...)
		out.Steps[i].RequiresKeys = append([]string(nil), c.Steps[i].RequiresKeys...)
	}

	out.Phases = make([]PhaseConfig, len(c.Phases))
	copy(out.Phases, c.Phases)
	for i := range out.Phases {
		out.Phases[i].Steps = append([]string(nil), c.Phases[i].Steps...)
	}

	out.Profiles = make(map[string]Profile, len(c.Profiles))
	for name, p := range c.Profiles {
		groups := make(map[string]bool, len(p.Groups))
		for k, v := range p.Groups {
			groups[k] = v
		}
		p.Groups = groups
		out.Profiles[name] = p
	}

	out.Groups = make(map[string]bool, len(c.Groups))
	for k, v := range c.Groups {
		out.Groups[k] = v
	}

	out.Preflight.Tools = make([]ToolRequirement, len(c.Preflight.Tools))
	copy(out.Preflight.Tools, c.Preflight.Tools)
	for i := range out.Preflight.Tools {
		out.Preflight.Tools[i].Install = append([]string(nil), c.Preflight.Tools[i].Install...)
	}

	return &out
}

// DefaultConfig returns a new [Config] with engine defaults.
//
// The defaults carry no steps or phases; those always come from the config
// file. Engine knobs (resume mode, timeout, logging) have working values so a
// minimal file only needs to declare its plan.
func DefaultConfig() *Config {
	return &Config{
		Project: ProjectConfig{
			InstallRoot: ".",
		},
		Groups: map[string]bool{},
		Logging: LoggingConfig{
			Level:            "info",
			Format:           "plain",
			RotateAfterDays:  7,
			CleanupAfterDays: 30,
		},
		Preflight: PreflightConfig{
			Remediate:   false,
			SkipMissing: false,
		},
		Safety: SafetyConfig{
			GitSafety:  true,
			AllowDirty: false,
		},
		ResumeMode:        "skip",
		MaxCommandSeconds: 600,
	}
}
