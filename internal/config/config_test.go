package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePrompter returns canned answers keyed by label prefix.
type fakePrompter struct {
	answers map[string]string
}

func (f *fakePrompter) Prompt(label, defaultValue string) (string, error) {
	if v, ok := f.answers[label]; ok {
		return v, nil
	}
	return defaultValue, nil
}

const validYAML = `
project:
  name: demo
  install_root: .
  admin_password: s3cret
steps:
  - phase: base
    name: init
    label: Init
    command: ["true"]
    critical: true
  - phase: base
    name: extras
    label: Extras
    command: ["true"]
    group: extras
phases:
  - id: base
    label: Base
    steps: ["base/init", "base/extras"]
profiles:
  minimal:
    groups:
      extras: false
`

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644)
	require.NoError(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "skip", cfg.ResumeMode)
	assert.Equal(t, 600, cfg.MaxCommandSeconds)
	assert.Equal(t, "plain", cfg.Logging.Format)
	assert.True(t, cfg.Safety.GitSafety)
	assert.Empty(t, cfg.Steps)
}

func TestLoader_Load(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, validYAML)

	loader := NewLoader(&fakePrompter{})
	cfg, err := loader.Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Project.Name)
	assert.Len(t, cfg.Steps, 2)
	assert.Len(t, cfg.Phases, 1)
	assert.Contains(t, cfg.Profiles, "minimal")

	// Defaults fill in what the file omits.
	assert.Equal(t, "skip", cfg.ResumeMode)
	assert.Equal(t, 600, cfg.MaxCommandSeconds)
}

func TestLoader_Load_MissingFileNoTemplate(t *testing.T) {
	loader := NewLoader(&fakePrompter{})
	_, err := loader.Load(t.TempDir())

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoader_Load_InitializesFromTemplate(t *testing.T) {
	tmpDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tmpDir, TemplateFileName), []byte(validYAML), 0o644)
	require.NoError(t, err)

	loader := NewLoader(&fakePrompter{})
	cfg, err := loader.Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Project.Name)

	// The template was copied into place for later runs.
	_, err = os.Stat(filepath.Join(tmpDir, ConfigFileName))
	assert.NoError(t, err)
}

func TestLoader_Load_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, validYAML)

	// admin_password overrides a key the file sets; max_command_seconds is
	// absent from the file and must still be picked up from the environment.
	t.Setenv("STACKPILOT_PROJECT_ADMIN_PASSWORD", "from-env")
	t.Setenv("STACKPILOT_MAX_COMMAND_SECONDS", "42")

	loader := NewLoader(&fakePrompter{})
	cfg, err := loader.Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Project.AdminPassword)
	assert.Equal(t, 42, cfg.MaxCommandSeconds)
}

func TestLoader_Load_PromptsForPlaceholderPassword(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
project:
  name: demo
  install_root: .
  admin_password: changeme
steps:
  - phase: base
    name: init
    command: ["true"]
phases:
  - id: base
    label: Base
    steps: ["base/init"]
`)

	loader := NewLoader(&fakePrompter{answers: map[string]string{"Admin password": "prompted-secret"}})
	cfg, err := loader.Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "prompted-secret", cfg.Project.AdminPassword)
}

func TestLoader_Load_RejectsPlaceholderNonInteractive(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
non_interactive: true
project:
  name: demo
  admin_password: changeme
steps:
  - phase: base
    name: init
    command: ["true"]
phases:
  - id: base
    label: Base
    steps: ["base/init"]
`)

	loader := NewLoader(&fakePrompter{})
	_, err := loader.Load(tmpDir)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "placeholder")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Steps = []StepConfig{
			{Phase: "base", Name: "init", Command: []string{"true"}},
		}
		cfg.Phases = []PhaseConfig{
			{ID: "base", Label: "Base", Steps: []string{"base/init"}},
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "no steps",
			mutate:  func(cfg *Config) { cfg.Steps = nil },
			wantErr: "no steps",
		},
		{
			name: "step references unknown phase",
			mutate: func(cfg *Config) {
				cfg.Steps = append(cfg.Steps, StepConfig{Phase: "ghost", Name: "x", Command: []string{"true"}})
			},
			wantErr: "unknown phase",
		},
		{
			name: "phase references unknown step",
			mutate: func(cfg *Config) {
				cfg.Phases[0].Steps = append(cfg.Phases[0].Steps, "base/ghost")
			},
			wantErr: "unknown step",
		},
		{
			name: "duplicate step id",
			mutate: func(cfg *Config) {
				cfg.Steps = append(cfg.Steps, cfg.Steps[0])
			},
			wantErr: "duplicate step id",
		},
		{
			name: "duplicate phase id",
			mutate: func(cfg *Config) {
				cfg.Phases = append(cfg.Phases, cfg.Phases[0])
			},
			wantErr: "duplicate phase id",
		},
		{
			name: "step without command",
			mutate: func(cfg *Config) {
				cfg.Steps[0].Command = nil
			},
			wantErr: "no command",
		},
		{
			name:    "invalid resume mode",
			mutate:  func(cfg *Config) { cfg.ResumeMode = "sometimes" },
			wantErr: "resume_mode",
		},
		{
			name:    "invalid logging format",
			mutate:  func(cfg *Config) { cfg.Logging.Format = "xml" },
			wantErr: "logging format",
		},
		{
			name:    "zero timeout",
			mutate:  func(cfg *Config) { cfg.MaxCommandSeconds = 0 },
			wantErr: "max_command_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				var cfgErr *ConfigError
				require.ErrorAs(t, err, &cfgErr)
				assert.Contains(t, cfgErr.Reason, tt.wantErr)
			}
		})
	}
}

func TestConfig_EnabledSteps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Steps = []StepConfig{
		{Phase: "base", Name: "init", Command: []string{"true"}, Critical: true},
		{Phase: "base", Name: "extras", Command: []string{"true"}, Group: "extras"},
	}
	cfg.Phases = []PhaseConfig{
		{ID: "base", Steps: []string{"base/init", "base/extras"}},
	}

	steps, err := cfg.EnabledSteps("base")
	require.NoError(t, err)
	assert.Len(t, steps, 2)

	cfg.Groups["extras"] = false
	steps, err = cfg.EnabledSteps("base")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "base/init", steps[0].ID())

	_, err = cfg.EnabledSteps("ghost")
	assert.Error(t, err)
}

func TestConfig_Clone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Steps = []StepConfig{
		{Phase: "base", Name: "init", Command: []string{"true"}, Group: "g"},
	}
	cfg.Phases = []PhaseConfig{{ID: "base", Steps: []string{"base/init"}}}
	cfg.Profiles = map[string]Profile{"p": {Groups: map[string]bool{"g": true}}}

	clone := cfg.Clone()
	clone.Groups["g"] = false
	clone.Steps[0].Group = ""
	clone.Profiles["p"].Groups["g"] = false

	assert.NotContains(t, cfg.Groups, "g")
	assert.Equal(t, "g", cfg.Steps[0].Group)
	assert.True(t, cfg.Profiles["p"].Groups["g"])
}

func TestConfig_ConfigValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Project.Name = "demo"
	cfg.Project.AdminPassword = "pw"

	assert.Equal(t, "demo", cfg.ConfigValue("project.name"))
	assert.Equal(t, "pw", cfg.ConfigValue("project.admin_password"))
	assert.Empty(t, cfg.ConfigValue("nonsense.key"))
}
