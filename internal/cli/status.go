package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"stackpilot/internal/state"
)

func newStatusCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-phase installation progress",
		Long: `Status reports progress from the durable state ledger: an overall
completed/total step count plus a per-phase breakdown with step indicators.
It never mutates state and can run while another instance is active.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Quiet = true
			rt, err := app.setup("", false, false)
			if err != nil {
				return err
			}
			defer rt.release()
			return app.printStatus(rt)
		},
	}
}

func (a *App) printStatus(rt *runtime) error {
	total := rt.cfg.TotalEnabledSteps()
	completed := 0

	fmt.Fprintln(a.Out, menuTitleStyle.Render(fmt.Sprintf("stackpilot — %s", rt.cfg.Project.Name)))

	for _, ph := range rt.cfg.Phases {
		steps, err := rt.cfg.EnabledSteps(ph.ID)
		if err != nil {
			return err
		}

		phaseDone := 0
		var markers string
		for _, def := range steps {
			e, ok := rt.store.Get(state.SubjectStep, def.ID())
			switch {
			case ok && e.Status == state.StatusCompleted:
				markers += doneStyle.Render("✓")
				phaseDone++
			case ok && e.Status == state.StatusFailed:
				markers += failedStyle.Render("✗")
			default:
				markers += pendingStyle.Render("○")
			}
		}
		completed += phaseDone

		fmt.Fprintf(a.Out, "  %s %-28s %2d/%-2d %s\n",
			phaseMarker(rt.store, ph.ID), ph.Label, phaseDone, len(steps), markers)
	}

	fmt.Fprintf(a.Out, "\n%d/%d steps completed\n", completed, total)

	if cp, ok := rt.ckpt.Load(); ok {
		fmt.Fprintf(a.Out, "Checkpoint: phase %s", cp.Phase)
		if cp.Step != "" {
			fmt.Fprintf(a.Out, ", step %s", cp.Step)
		}
		fmt.Fprintf(a.Out, " (%s)\n", cp.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return nil
}
