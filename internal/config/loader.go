package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ConfigFileName is the configuration file the loader reads from the project root.
const ConfigFileName = "stackpilot.yaml"

// TemplateFileName is the template copied on first-run initialization.
const TemplateFileName = "stackpilot.example.yaml"

// placeholderPassword is the sentinel credential shipped in the template.
// It must be replaced before a non-interactive run.
const placeholderPassword = "changeme"

// ConfigError indicates missing or invalid configuration. It is fatal before
// any step executes: the loader never returns a partially valid [Config].
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Prompter collects a value from the operator during first-run initialization.
//
// The production implementation reads from the terminal; tests and automated
// environments inject canned answers. An empty answer keeps the default.
type Prompter interface {
	Prompt(label, defaultValue string) (string, error)
}

// StdinPrompter prompts on the given writer and reads answers line-by-line.
type StdinPrompter struct {
	In  io.Reader
	Out io.Writer
}

// Prompt prints "label [default]: " and returns the entered value, or the
// default when the operator just presses enter.
func (p *StdinPrompter) Prompt(label, defaultValue string) (string, error) {
	fmt.Fprintf(p.Out, "%s [%s]: ", label, defaultValue)
	reader := bufio.NewReader(p.In)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultValue, nil
	}
	return line, nil
}

// envBoundKeys are the scalar configuration keys overridable through the
// environment (STACKPILOT_ prefix, dots replaced by underscores) even when
// the configuration file omits them. Steps, phases, and profiles are
// structural and only come from the file.
var envBoundKeys = []string{
	"project.name",
	"project.install_root",
	"project.admin_password",
	"resume_mode",
	"max_command_seconds",
	"non_interactive",
	"logging.level",
	"logging.format",
	"logging.rotate_after_days",
	"logging.cleanup_after_days",
	"preflight.remediate",
	"preflight.skip_missing",
	"safety.git_safety",
	"safety.allow_dirty",
	"state.strict",
}

// Loader loads and validates stackpilot configuration.
//
// Use [NewLoader] to construct one. Load behavior on a missing config file
// depends on NonInteractive: interactive mode copies the template and prompts
// for the critical values; non-interactive mode copies the template silently
// but rejects unchanged placeholder credentials.
type Loader struct {
	prompter Prompter
}

// NewLoader creates a Loader. A nil prompter falls back to stdin/stdout.
func NewLoader(prompter Prompter) *Loader {
	if prompter == nil {
		prompter = &StdinPrompter{In: os.Stdin, Out: os.Stdout}
	}
	return &Loader{prompter: prompter}
}

// Load reads, initializes if necessary, and validates the configuration file
// in dir. It returns a fully validated [Config] or a [ConfigError]; there is
// no partial load.
func (l *Loader) Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)

	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := l.initFromTemplate(dir, path); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("STACKPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so a
	// STACKPILOT_* variable for a key the file omits would be dropped by
	// Unmarshal. Bind the scalar engine keys explicitly.
	for _, key := range envBoundKeys {
		v.MustBindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("failed to read %s: %v", path, err)}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("failed to parse %s: %v", path, err)}
	}

	if !cfg.NonInteractive {
		if err := l.promptCritical(cfg); err != nil {
			return nil, err
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initFromTemplate copies the template into place on first run. A missing
// template is a hard failure: there is nothing sensible to run against.
func (l *Loader) initFromTemplate(dir, path string) error {
	tmpl := filepath.Join(dir, TemplateFileName)
	data, err := os.ReadFile(tmpl)
	if err != nil {
		return &ConfigError{Reason: fmt.Sprintf("no %s found and no %s template to initialize from", ConfigFileName, TemplateFileName)}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &ConfigError{Reason: fmt.Sprintf("failed to initialize %s from template: %v", ConfigFileName, err)}
	}
	return nil
}

// promptCritical fills in the small set of values a fresh install needs.
// Only empty or placeholder values trigger a prompt.
func (l *Loader) promptCritical(cfg *Config) error {
	var err error
	if cfg.Project.Name == "" {
		cfg.Project.Name, err = l.prompter.Prompt("Project name", "my-project")
		if err != nil {
			return &ConfigError{Reason: fmt.Sprintf("prompt failed: %v", err)}
		}
	}
	if cfg.Project.InstallRoot == "" {
		cfg.Project.InstallRoot, err = l.prompter.Prompt("Install root", ".")
		if err != nil {
			return &ConfigError{Reason: fmt.Sprintf("prompt failed: %v", err)}
		}
	}
	if cfg.Project.AdminPassword == "" || cfg.Project.AdminPassword == placeholderPassword {
		cfg.Project.AdminPassword, err = l.prompter.Prompt("Admin password", "")
		if err != nil {
			return &ConfigError{Reason: fmt.Sprintf("prompt failed: %v", err)}
		}
	}
	return nil
}

// Validate checks the configuration schema.
//
// Every phase a step names must exist, every step a phase lists must be
// defined, step ids must be unique, and engine knobs must hold sane values.
// In non-interactive mode, placeholder credentials are rejected here.
func Validate(cfg *Config) error {
	if len(cfg.Steps) == 0 {
		return &ConfigError{Reason: "no steps defined"}
	}
	if len(cfg.Phases) == 0 {
		return &ConfigError{Reason: "no phases defined"}
	}

	phaseIDs := make(map[string]bool, len(cfg.Phases))
	for _, ph := range cfg.Phases {
		if ph.ID == "" {
			return &ConfigError{Reason: "phase with empty id"}
		}
		if phaseIDs[ph.ID] {
			return &ConfigError{Reason: fmt.Sprintf("duplicate phase id: %s", ph.ID)}
		}
		phaseIDs[ph.ID] = true
	}

	stepIDs := make(map[string]bool, len(cfg.Steps))
	for _, s := range cfg.Steps {
		if s.Name == "" {
			return &ConfigError{Reason: "step with empty name"}
		}
		if !phaseIDs[s.Phase] {
			return &ConfigError{Reason: fmt.Sprintf("step %s references unknown phase: %s", s.ID(), s.Phase)}
		}
		if stepIDs[s.ID()] {
			return &ConfigError{Reason: fmt.Sprintf("duplicate step id: %s", s.ID())}
		}
		if len(s.Command) == 0 {
			return &ConfigError{Reason: fmt.Sprintf("step %s has no command", s.ID())}
		}
		stepIDs[s.ID()] = true
	}

	for _, ph := range cfg.Phases {
		for _, id := range ph.Steps {
			if !stepIDs[id] {
				return &ConfigError{Reason: fmt.Sprintf("phase %s references unknown step: %s", ph.ID, id)}
			}
		}
	}

	switch cfg.ResumeMode {
	case "skip", "force":
	default:
		return &ConfigError{Reason: fmt.Sprintf("invalid resume_mode: %s (want skip or force)", cfg.ResumeMode)}
	}
	if cfg.MaxCommandSeconds <= 0 {
		return &ConfigError{Reason: "max_command_seconds must be positive"}
	}
	switch cfg.Logging.Format {
	case "plain", "json":
	default:
		return &ConfigError{Reason: fmt.Sprintf("invalid logging format: %s (want plain or json)", cfg.Logging.Format)}
	}

	if cfg.NonInteractive && cfg.Project.AdminPassword == placeholderPassword {
		return &ConfigError{Reason: "admin_password still holds the template placeholder; set a real value before a non-interactive run"}
	}

	return nil
}
