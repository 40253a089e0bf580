package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"stackpilot/internal/phase"
)

// runOptions holds the run command's flag values.
type runOptions struct {
	all             bool
	phaseID         string
	scriptID        string
	resume          bool
	fromPhase       string
	profileName     string
	dryRun          bool
	verbose         bool
	autoConfirm     bool
	force           bool
	skipBreakpoints bool
	skipPreflight   bool
}

func newRunCommand(app *App) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run installation phases or individual steps",
		Long: `Run executes installation work against the target project:

  run --all             every phase in order
  run --phase <id>      one phase
  run --script <id>     one step
  run --resume          continue from the last checkpoint
  run                   interactive phase menu

A phase flagged as a breakpoint pauses after completion for review unless
--skip-breakpoints or --yes is set. Completed steps are skipped on re-runs
unless --force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// A profile may default to preview mode; an explicit flag wins.
			dryRunSet := cmd.Flags().Changed("dry-run")
			return app.runCommand(cmd, opts, dryRunSet)
		},
	}

	cmd.Flags().BoolVar(&opts.all, "all", false, "run every phase in order")
	cmd.Flags().StringVar(&opts.phaseID, "phase", "", "run a single phase by id")
	cmd.Flags().StringVar(&opts.scriptID, "script", "", "run a single step by id")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "resume from the last checkpoint")
	cmd.Flags().StringVar(&opts.fromPhase, "from", "", "start an --all run at the given phase")
	cmd.Flags().StringVar(&opts.profileName, "profile", "", "apply a named stack profile")
	cmd.Flags().BoolVarP(&opts.dryRun, "dry-run", "n", false, "preview steps without side effects")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "echo step output")
	cmd.Flags().BoolVarP(&opts.autoConfirm, "yes", "y", false, "auto-confirm breakpoints")
	cmd.Flags().BoolVar(&opts.force, "force", false, "re-run steps already completed")
	cmd.Flags().BoolVar(&opts.skipBreakpoints, "skip-breakpoints", false, "never pause at breakpoints")
	cmd.Flags().BoolVar(&opts.skipPreflight, "skip-preflight", false, "skip prerequisite validation")

	return cmd
}

func (a *App) runCommand(cmd *cobra.Command, opts *runOptions, dryRunSet bool) error {
	rt, err := a.setup(opts.profileName, !opts.dryRun, false)
	if err != nil {
		return err
	}
	defer rt.release()

	dryRun := opts.dryRun
	if !dryRunSet && opts.profileName != "" {
		if p, ok := rt.cfg.Profiles[opts.profileName]; ok && p.DryRunDefault {
			rt.log.Infof("profile %q defaults to dry-run; pass --dry-run=false to execute", opts.profileName)
			dryRun = true
		}
	}

	ctx := cmd.Context()

	// Dry-run never runs preflight: previews must work on a fresh machine.
	if !opts.skipPreflight && !dryRun {
		if err := a.runPreflight(ctx, rt); err != nil {
			return err
		}
	}

	flags := phase.Flags{
		DryRun:          dryRun,
		Force:           opts.force,
		Verbose:         opts.verbose,
		SkipBreakpoints: opts.skipBreakpoints,
		AutoConfirm:     opts.autoConfirm,
	}

	rt.orch.SetProgressCallback(func(i, total int, stepID string) {
		fmt.Fprintf(a.Out, "  [%d/%d] %s\n", i, total, stepID)
	})

	switch {
	case opts.scriptID != "":
		err = rt.orch.RunStep(ctx, opts.scriptID, flags)
	case opts.phaseID != "":
		err = rt.orch.RunPhase(ctx, opts.phaseID, flags)
	case opts.all || opts.resume || opts.fromPhase != "":
		err = rt.orch.RunAll(ctx, opts.fromPhase, opts.resume, flags)
	default:
		err = a.runMenu(ctx, rt, flags)
	}

	if err == nil {
		return nil
	}
	if errors.Is(err, phase.ErrRunStopped) {
		fmt.Fprintln(a.Out, "Run stopped at breakpoint; resume with: stackpilot run --resume")
		return nil
	}

	var phErr *phase.Error
	if errors.As(err, &phErr) {
		a.printFailure(rt, phErr)
		return NewExitError(1)
	}
	return err
}
