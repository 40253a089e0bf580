package cli

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"stackpilot/internal/phase"
	"stackpilot/internal/state"
)

var (
	menuTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	doneStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// runMenu presents the interactive phase menu shown when run is invoked with
// no selector flags. The operator picks one phase, the whole plan, or quits.
func (a *App) runMenu(ctx context.Context, rt *runtime, flags phase.Flags) error {
	reader := bufio.NewReader(a.In)

	for {
		fmt.Fprintln(a.Out, menuTitleStyle.Render(fmt.Sprintf("stackpilot — %s", rt.cfg.Project.Name)))
		for i, ph := range rt.cfg.Phases {
			fmt.Fprintf(a.Out, "  %2d) %s %s\n", i+1, phaseMarker(rt.store, ph.ID), ph.Label)
		}
		fmt.Fprintln(a.Out, "   a) run all phases")
		fmt.Fprintln(a.Out, "   q) quit")
		fmt.Fprint(a.Out, "> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			// EOF or closed input: quit quietly.
			return nil
		}

		switch choice := strings.TrimSpace(strings.ToLower(line)); choice {
		case "q", "quit", "":
			return nil
		case "a", "all":
			return rt.orch.RunAll(ctx, "", false, flags)
		default:
			n, err := strconv.Atoi(choice)
			if err != nil || n < 1 || n > len(rt.cfg.Phases) {
				fmt.Fprintf(a.Out, "invalid choice: %s\n\n", choice)
				continue
			}
			return rt.orch.RunPhase(ctx, rt.cfg.Phases[n-1].ID, flags)
		}
	}
}

// phaseMarker renders a one-character completion indicator for a phase.
func phaseMarker(store *state.Store, phaseID string) string {
	e, ok := store.Get(state.SubjectPhase, phaseID)
	if !ok {
		return pendingStyle.Render("○")
	}
	switch e.Status {
	case state.StatusCompleted:
		return doneStyle.Render("✓")
	case state.StatusFailed:
		return failedStyle.Render("✗")
	case state.StatusInProgress:
		return pendingStyle.Render("…")
	default:
		return pendingStyle.Render("○")
	}
}
