package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stackpilot/internal/config"
	"stackpilot/internal/phase"
	"stackpilot/internal/preflight"
	"stackpilot/internal/state"
)

// NewRootCommand builds the stackpilot command tree.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "stackpilot",
		Short: "Config-driven installation orchestrator",
		Long: `stackpilot walks an ordered set of idempotent setup steps, grouped into
phases, against a target project directory. Progress is tracked durably so an
interrupted run resumes without repeating completed work.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCommand(app))
	root.AddCommand(newStatusCommand(app))
	root.AddCommand(newResetCommand(app))
	root.AddCommand(newListPhasesCommand(app))
	root.AddCommand(newListScriptsCommand(app))
	root.AddCommand(newListProfilesCommand(app))

	return root
}

// Execute runs the CLI and returns the process exit code.
//
// Error-to-exit-code mapping follows the propagation policy: configuration
// and safety violations are usage-class failures (2), step and phase
// failures are runtime failures (1), and a graceful breakpoint stop is 0.
func Execute() int {
	app := NewApp()
	cmd := NewRootCommand(app)

	err := cmd.Execute()
	if err == nil {
		return 0
	}
	if code, ok := IsExitError(err); ok {
		return code
	}
	if errors.Is(err, phase.ErrRunStopped) {
		return 0
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var cfgErr *config.ConfigError
	var gitErr *preflight.GitSafetyError
	var corruptErr *state.CorruptRecordError
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &gitErr), errors.As(err, &corruptErr):
		return 2
	default:
		return 1
	}
}
