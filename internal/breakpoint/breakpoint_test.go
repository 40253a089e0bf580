package breakpoint

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackpilot/internal/config"
	"stackpilot/internal/logging"
	"stackpilot/internal/step"
)

// recordingConfirmer returns a fixed decision and records invocations.
type recordingConfirmer struct {
	decision Decision
	calls    int
}

func (r *recordingConfirmer) Confirm(phaseID, label string) (Decision, error) {
	r.calls++
	return r.decision, nil
}

func breakpointPhase() config.PhaseConfig {
	return config.PhaseConfig{
		ID:         "backend",
		Label:      "Backend services",
		Breakpoint: true,
		Guidance:   "Verify the database schema before continuing.",
	}
}

func sampleResults() []step.Result {
	return []step.Result{
		{StepID: "backend/setup-database", Outcome: step.OutcomeSuccess, Duration: 2 * time.Second, Touched: []string{"db/schema.sql"}},
		{StepID: "backend/seed-admin", Outcome: step.OutcomeSkipped},
	}
}

func TestMaybePause_Gating(t *testing.T) {
	tests := []struct {
		name        string
		breakpoint  bool
		flags       Flags
		wantConfirm bool
		wantHandoff bool
	}{
		{
			name:        "breakpoint pauses",
			breakpoint:  true,
			wantConfirm: true,
			wantHandoff: true,
		},
		{
			name:       "non-breakpoint phase never pauses",
			breakpoint: false,
		},
		{
			name:       "skip-breakpoints bypasses everything",
			breakpoint: true,
			flags:      Flags{SkipBreakpoints: true},
		},
		{
			name:       "dry-run bypasses everything",
			breakpoint: true,
			flags:      Flags{DryRun: true},
		},
		{
			name:        "auto-confirm skips the wait but writes the handoff",
			breakpoint:  true,
			flags:       Flags{AutoConfirm: true},
			wantHandoff: true,
		},
		{
			name:       "skip-breakpoints wins over auto-confirm",
			breakpoint: true,
			flags:      Flags{SkipBreakpoints: true, AutoConfirm: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			confirmer := &recordingConfirmer{decision: Continue}
			c := NewController(dir, confirmer, &bytes.Buffer{}, logging.NewNop())

			ph := breakpointPhase()
			ph.Breakpoint = tt.breakpoint

			decision, err := c.MaybePause(ph, sampleResults(), tt.flags)
			require.NoError(t, err)
			assert.Equal(t, Continue, decision)

			if tt.wantConfirm {
				assert.Equal(t, 1, confirmer.calls)
			} else {
				assert.Zero(t, confirmer.calls)
			}

			_, statErr := os.Stat(filepath.Join(dir, "handoff-backend.md"))
			if tt.wantHandoff {
				assert.NoError(t, statErr)
			} else {
				assert.True(t, os.IsNotExist(statErr))
			}
		})
	}
}

func TestMaybePause_PropagatesDecision(t *testing.T) {
	c := NewController(t.TempDir(), &recordingConfirmer{decision: Stop}, &bytes.Buffer{}, logging.NewNop())

	decision, err := c.MaybePause(breakpointPhase(), sampleResults(), Flags{})
	require.NoError(t, err)
	assert.Equal(t, Stop, decision)
}

func TestHandoffDocumentContent(t *testing.T) {
	dir := t.TempDir()
	c := NewController(dir, &recordingConfirmer{decision: Continue}, &bytes.Buffer{}, logging.NewNop())

	_, err := c.MaybePause(breakpointPhase(), sampleResults(), Flags{AutoConfirm: true})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "handoff-backend.md"))
	require.NoError(t, err)
	doc := string(data)

	assert.Contains(t, doc, "# Handoff: Backend services")
	assert.Contains(t, doc, "backend/setup-database: success")
	assert.Contains(t, doc, "backend/seed-admin: skipped")
	assert.Contains(t, doc, "db/schema.sql")
	assert.Contains(t, doc, "Verify the database schema")
}

func TestHandoffDocumentOverwrittenOnReentry(t *testing.T) {
	dir := t.TempDir()
	c := NewController(dir, &recordingConfirmer{decision: Continue}, &bytes.Buffer{}, logging.NewNop())

	_, err := c.MaybePause(breakpointPhase(), sampleResults(), Flags{AutoConfirm: true})
	require.NoError(t, err)

	second := []step.Result{{StepID: "backend/setup-database", Outcome: step.OutcomeSkipped}}
	_, err = c.MaybePause(breakpointPhase(), second, Flags{AutoConfirm: true})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "handoff-backend.md"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "seed-admin", "re-entry must overwrite the previous document")
}

func TestTerminalConfirmer(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Decision
	}{
		{"continue", "c\n", Continue},
		{"enter defaults to continue", "\n", Continue},
		{"stop", "s\n", Stop},
		{"quit", "q\n", Abort},
		{"retries on junk", "wat\nq\n", Abort},
		{"eof stops", "", Stop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			confirmer := &TerminalConfirmer{In: strings.NewReader(tt.input), Out: &out}
			got, err := confirmer.Confirm("backend", "Backend services")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "backend")
		})
	}
}
