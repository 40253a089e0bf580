// Package cli provides the stackpilot command-line front-end.
//
// The CLI is a thin layer: it translates flags and arguments into calls on
// the engine packages (config, profile, preflight, phase, state) and maps the
// error taxonomy onto exit codes. All engine dependencies hang off [App] so
// tests can substitute prompters, confirmers, and I/O streams.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"stackpilot/internal/breakpoint"
	"stackpilot/internal/config"
	"stackpilot/internal/logging"
	"stackpilot/internal/phase"
	"stackpilot/internal/preflight"
	"stackpilot/internal/profile"
	"stackpilot/internal/state"
	"stackpilot/internal/step"
)

// StateDirName is the engine's working directory under the project root.
const StateDirName = ".stackpilot"

// App is the dependency container for all commands.
//
// Zero-value fields get production defaults in [NewApp]: terminal prompter
// and confirmer, stdin/stdout streams, current working directory.
type App struct {
	// Dir is the target project directory. Defaults to the cwd.
	Dir string

	// In/Out are the interactive streams.
	In  io.Reader
	Out io.Writer

	// Prompter collects first-run config values.
	Prompter config.Prompter

	// Confirmer blocks at breakpoints.
	Confirmer breakpoint.Confirmer

	// Quiet suppresses the terminal log stream (status/list commands).
	Quiet bool
}

// NewApp creates an App with production defaults.
func NewApp() *App {
	dir, err := os.Getwd()
	if err != nil {
		dir = "."
	}
	return &App{
		Dir: dir,
		In:  os.Stdin,
		Out: os.Stdout,
	}
}

// StateDir returns the engine working directory for the target project.
func (a *App) StateDir() string {
	return filepath.Join(a.Dir, StateDirName)
}

// runtime bundles everything a run needs, built once per command invocation.
type runtime struct {
	cfg   *config.Config
	log   *logging.Logger
	store *state.Store
	ckpt  *state.CheckpointManager
	orch  *phase.Orchestrator
	lock  *state.Lock
}

// release frees run-scoped resources.
func (r *runtime) release() {
	if r.lock != nil {
		r.lock.Release()
	}
}

// setup loads configuration, applies the profile, and wires the engine.
//
// withLock acquires the single-writer run lock; read-only commands (status,
// list) pass false so they can inspect state while a run is active. lenient
// opens the ledger in non-strict mode regardless of configuration: the reset
// command must always be able to clear a corrupt ledger, otherwise strict
// mode would wedge the tool with no recovery path.
func (a *App) setup(profileName string, withLock, lenient bool) (*runtime, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		Dir:              filepath.Join(a.StateDir(), "logs"),
		RotateAfterDays:  cfg.Logging.RotateAfterDays,
		CleanupAfterDays: cfg.Logging.CleanupAfterDays,
		Quiet:            a.Quiet,
	})
	if err != nil {
		return nil, err
	}

	cfg = resolveProfile(cfg, profileName, log)

	rt := &runtime{cfg: cfg, log: log}

	if withLock {
		lock, err := state.AcquireLock(a.StateDir(), log.RunID(), log)
		if err != nil {
			return nil, err
		}
		rt.lock = lock
	}

	store, err := state.NewStore(a.StateDir(), cfg.State.Strict && !lenient, log)
	if err != nil {
		rt.release()
		return nil, err
	}
	rt.store = store
	rt.ckpt = state.NewCheckpointManager(a.StateDir())

	confirmer := a.Confirmer
	if confirmer == nil {
		confirmer = &breakpoint.TerminalConfirmer{In: a.In, Out: a.Out}
	}
	pauser := breakpoint.NewController(a.StateDir(), confirmer, a.Out, log)

	executor := step.NewExecutor(cfg, store, log)
	rt.orch = phase.NewOrchestrator(cfg, executor, store, rt.ckpt, pauser, log)

	return rt, nil
}

func (a *App) loadConfig() (*config.Config, error) {
	loader := config.NewLoader(a.Prompter)
	return loader.Load(a.Dir)
}

// resolveProfile applies the named profile on top of the loaded snapshot.
func resolveProfile(cfg *config.Config, name string, log *logging.Logger) *config.Config {
	return profile.Resolve(cfg, name, log)
}

// runPreflight applies the validator and maps its outcome.
func (a *App) runPreflight(ctx context.Context, rt *runtime) error {
	validator := preflight.NewValidator(rt.cfg, rt.log)
	outcome, err := validator.Check(ctx)
	if err != nil {
		return err
	}
	if outcome == preflight.Remediated {
		rt.log.Info("preflight remediated missing prerequisites")
	}
	return nil
}

// printFailure renders the fatal-failure footer: the failing phase/step, the
// log file, and the literal resume command.
func (a *App) printFailure(rt *runtime, phErr *phase.Error) {
	fmt.Fprintf(a.Out, "\nRun failed in phase %s at step %s.\n", phErr.Phase, phErr.Step)
	if path := rt.log.FilePath(); path != "" {
		fmt.Fprintf(a.Out, "Log: %s\n", path)
	}
	fmt.Fprintf(a.Out, "Fix the problem, then resume with: stackpilot run --resume\n")
}
