package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"stackpilot/internal/state"
)

func newResetCommand(app *App) *cobra.Command {
	var (
		subjectType string
		allEntries  bool
	)

	cmd := &cobra.Command{
		Use:   "reset [subject-id]",
		Short: "Clear recorded progress",
		Long: `Reset deletes ledger entries so steps or phases run again:

  reset --all-entries          clear everything, including the checkpoint
  reset --type step <id>       forget one step
  reset --type phase <id>      forget one phase
  reset --type step '*'        forget every step`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Lenient: reset is the recovery path for a corrupt ledger and
			// must not be blocked by strict mode.
			rt, err := app.setup("", true, true)
			if err != nil {
				return err
			}
			defer rt.release()

			if allEntries {
				if err := rt.store.ResetEverything(); err != nil {
					return err
				}
				if err := rt.ckpt.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(app.Out, "All recorded progress cleared.")
				return nil
			}

			if len(args) == 0 {
				return NewExitError(2)
			}

			var typ state.SubjectType
			switch subjectType {
			case "step":
				typ = state.SubjectStep
			case "phase":
				typ = state.SubjectPhase
			default:
				fmt.Fprintf(app.Out, "invalid --type %q (want step or phase)\n", subjectType)
				return NewExitError(2)
			}

			if err := rt.store.Reset(typ, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Cleared %s %s.\n", typ, args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&subjectType, "type", "step", "subject type: step or phase")
	cmd.Flags().BoolVar(&allEntries, "all-entries", false, "clear the whole ledger and checkpoint")

	return cmd
}
