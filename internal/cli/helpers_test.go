package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"stackpilot/internal/breakpoint"
	"stackpilot/internal/config"
)

// testConfigYAML is a small but complete plan: two phases, three steps, one
// optional group, one breakpoint. Steps are shell one-liners so tests exercise
// the real executor.
const testConfigYAML = `
project:
  name: demo
  install_root: "."
  admin_password: s3cret

non_interactive: true
resume_mode: skip
max_command_seconds: 30

logging:
  level: info
  format: json

safety:
  git_safety: false

steps:
  - phase: base
    name: init
    label: Initialize workspace
    command: ["sh", "-c", "exit 0"]
    critical: true
  - phase: base
    name: billing
    label: Configure billing
    command: ["sh", "-c", "exit 0"]
    group: billing
  - phase: extras
    name: docs
    label: Generate docs
    command: ["sh", "-c", "exit 0"]

phases:
  - id: base
    label: Base setup
    steps: ["base/init", "base/billing"]
    breakpoint: true
    guidance: Review the workspace before continuing.
  - id: extras
    label: Extras
    steps: ["extras/docs"]

profiles:
  minimal:
    groups:
      billing: false
  full:
    recommended: true
    groups:
      billing: true
  preview:
    dry_run_default: true
    groups: {}
`

// newTestApp creates an App bound to a temp project directory seeded with
// testConfigYAML. Output is captured, breakpoints auto-continue.
func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	return newTestAppWithConfig(t, testConfigYAML)
}

func newTestAppWithConfig(t *testing.T, yaml string) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFileName), []byte(yaml), 0o644))

	out := &bytes.Buffer{}
	app := &App{
		Dir:       dir,
		In:        strings.NewReader(""),
		Out:       out,
		Confirmer: breakpoint.AutoConfirmer{},
		Quiet:     true,
	}
	return app, out
}

// decisionConfirmer returns a fixed decision at every breakpoint.
type decisionConfirmer struct {
	decision breakpoint.Decision
	asked    []string
}

func (d *decisionConfirmer) Confirm(phaseID, label string) (breakpoint.Decision, error) {
	d.asked = append(d.asked, phaseID)
	return d.decision, nil
}

// execute runs the command tree with the given args and returns the error.
func execute(app *App, args ...string) error {
	cmd := NewRootCommand(app)
	cmd.SetArgs(args)
	cmd.SetIn(app.In)
	cmd.SetOut(app.Out)
	cmd.SetErr(app.Out)
	return cmd.Execute()
}
