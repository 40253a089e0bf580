// Package breakpoint gates phase transitions on operator confirmation.
//
// A phase marked as a breakpoint pauses after completion so a human (or an
// LLM driving the tool) can review the handoff document before the next phase
// starts. The pause is a synchronous blocking wait on a [Confirmer]; the
// production implementation reads the terminal, and [AutoConfirmer] continues
// unconditionally for automated environments.
//
// Gating rules: a phase pauses iff its definition sets Breakpoint, skipping
// is not requested, and the run is not a dry-run. Under auto-confirm the
// pause is bypassed but the handoff document is still written, so the review
// artifact exists even when nobody is watching.
package breakpoint

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"stackpilot/internal/config"
	"stackpilot/internal/logging"
	"stackpilot/internal/step"
)

// Decision is the operator's choice at a breakpoint.
type Decision int

// Breakpoint decisions.
const (
	// Continue proceeds to the next phase.
	Continue Decision = iota
	// Stop ends the run gracefully (exit 0, checkpoint retained).
	Stop
	// Abort ends the run gracefully without further prompting on later
	// breakpoints in this process (exit 0, checkpoint retained).
	Abort
)

// Flags carries the run flags the gating rules consult.
type Flags struct {
	DryRun          bool
	SkipBreakpoints bool
	AutoConfirm     bool
}

// Confirmer blocks for the operator's breakpoint decision.
type Confirmer interface {
	Confirm(phaseID, label string) (Decision, error)
}

// AutoConfirmer always continues. Used under --yes and in tests.
type AutoConfirmer struct{}

// Confirm implements [Confirmer] by continuing unconditionally.
func (AutoConfirmer) Confirm(phaseID, label string) (Decision, error) {
	return Continue, nil
}

// TerminalConfirmer prompts on Out and reads the decision from In.
type TerminalConfirmer struct {
	In  io.Reader
	Out io.Writer
}

var promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))

// Confirm prompts until it reads continue (c/enter), stop (s), or quit (q).
func (t *TerminalConfirmer) Confirm(phaseID, label string) (Decision, error) {
	reader := bufio.NewReader(t.In)
	for {
		fmt.Fprintln(t.Out, promptStyle.Render(fmt.Sprintf("Breakpoint reached after phase %s (%s).", phaseID, label)))
		fmt.Fprint(t.Out, "[c]ontinue / [s]top / [q]uit: ")

		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return Stop, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		if err == io.EOF && answer == "" {
			// Input exhausted without a decision; stopping is the safe default.
			return Stop, nil
		}
		switch answer {
		case "", "c", "continue":
			return Continue, nil
		case "s", "stop":
			return Stop, nil
		case "q", "quit", "a", "abort":
			return Abort, nil
		}
		if err == io.EOF {
			return Stop, nil
		}
	}
}

// Controller decides whether a completed phase pauses the run and maintains
// the per-phase handoff documents.
type Controller struct {
	dir       string
	confirmer Confirmer
	out       io.Writer
	log       *logging.Logger
}

// NewController creates a Controller writing handoff documents under dir.
// A nil out defaults to stdout.
func NewController(dir string, confirmer Confirmer, out io.Writer, log *logging.Logger) *Controller {
	if out == nil {
		out = os.Stdout
	}
	return &Controller{dir: dir, confirmer: confirmer, out: out, log: log.Component("breakpoint")}
}

// MaybePause applies the gating rules after a phase completes.
//
// When the phase is a gated breakpoint, the handoff document is (re)written
// and the confirmer is consulted. Auto-confirm writes the document but skips
// the wait; skip-breakpoints and dry-run bypass everything.
func (c *Controller) MaybePause(ph config.PhaseConfig, results []step.Result, flags Flags) (Decision, error) {
	if !ph.Breakpoint || flags.SkipBreakpoints || flags.DryRun {
		return Continue, nil
	}

	path, err := c.writeHandoff(ph, results)
	if err != nil {
		return Continue, err
	}
	c.log.Infof("handoff document written to %s", path)

	if flags.AutoConfirm {
		c.log.Debugf("auto-confirm set, bypassing pause after phase %s", ph.ID)
		return Continue, nil
	}

	if ph.Guidance != "" {
		fmt.Fprintln(c.out, ph.Guidance)
	}
	fmt.Fprintf(c.out, "Review %s before continuing.\n", path)

	return c.confirmer.Confirm(ph.ID, ph.Label)
}

// writeHandoff generates the handoff document for a completed breakpoint
// phase, overwriting any document from a previous entry into the same phase.
func (c *Controller) writeHandoff(ph config.PhaseConfig, results []step.Result) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Handoff: %s\n\n", ph.Label)
	fmt.Fprintf(&b, "Phase `%s` completed %s.\n\n", ph.ID, time.Now().Format(time.RFC3339))

	b.WriteString("## Steps\n\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", r.StepID, r.Outcome, r.Duration.Round(time.Millisecond))
	}

	b.WriteString("\n## Files touched\n\n")
	touchedAny := false
	for _, r := range results {
		for _, f := range r.Touched {
			fmt.Fprintf(&b, "- %s\n", f)
			touchedAny = true
		}
	}
	if !touchedAny {
		b.WriteString("(none reported)\n")
	}

	b.WriteString("\n## Next actions\n\n")
	if ph.Guidance != "" {
		b.WriteString(ph.Guidance)
		b.WriteString("\n")
	} else {
		b.WriteString("Review the files above, then continue the run.\n")
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create handoff directory: %w", err)
	}
	path := filepath.Join(c.dir, fmt.Sprintf("handoff-%s.md", sanitize(ph.ID)))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write handoff document: %w", err)
	}
	return path, nil
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ':
			return '-'
		}
		return r
	}, id)
}
