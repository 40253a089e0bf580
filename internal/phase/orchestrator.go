// Package phase sequences installation phases and their steps.
//
// The phase package provides [Orchestrator], the state machine at the core of
// the engine. Each phase moves NOT_STARTED → IN_PROGRESS → {COMPLETED |
// FAILED}; COMPLETED phases are idempotent re-entry points (re-invoking one
// is a no-op unless force), and FAILED is terminal for the current run only;
// a later run may retry.
//
// Key concepts:
//   - Steps run strictly in declared order via an injected [step.Runner]
//   - The checkpoint slot is overwritten on every phase/step transition
//   - A step failure aborts the remaining steps of its phase and propagates,
//     which stops an --all run; prior recorded state is preserved for resume
//   - After a phase completes, the injected [Pauser] decides whether the run
//     pauses at a breakpoint
//
// Dependencies are injected for testability: runner, ledger, checkpoint, and
// pauser are all interfaces or small concrete types constructed by the CLI.
package phase

import (
	"context"
	"errors"
	"fmt"

	"stackpilot/internal/breakpoint"
	"stackpilot/internal/config"
	"stackpilot/internal/logging"
	"stackpilot/internal/state"
	"stackpilot/internal/step"
)

// ErrRunStopped is a sentinel indicating the operator chose to stop or quit
// at a breakpoint. It is a graceful outcome: callers exit 0 and the
// checkpoint is retained for resume.
var ErrRunStopped = errors.New("run stopped at breakpoint")

// Error reports a phase that failed at a specific step.
type Error struct {
	Phase string
	Step  string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("phase %s failed at step %s: %v", e.Phase, e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Flags carries the run-level flags the orchestrator forwards downstream.
type Flags struct {
	DryRun          bool
	Force           bool
	Verbose         bool
	SkipBreakpoints bool
	AutoConfirm     bool
}

// Pauser decides whether a completed phase pauses the run.
// [breakpoint.Controller] is the production implementation.
type Pauser interface {
	MaybePause(ph config.PhaseConfig, results []step.Result, flags breakpoint.Flags) (breakpoint.Decision, error)
}

// Checkpointer owns the resume slot. [state.CheckpointManager] is the
// production implementation.
type Checkpointer interface {
	Save(phase, stepID string) error
	Load() (state.Checkpoint, bool)
	Clear() error
}

// ProgressCallback is invoked before each step begins, with the 1-based step
// index within the phase, the phase's total step count, and the step id.
type ProgressCallback func(stepIndex, totalSteps int, stepID string)

// Orchestrator drives phases through their state machine.
//
// Use [NewOrchestrator]; all mutation of durable state is routed through the
// injected ledger and checkpointer, never ambient globals.
type Orchestrator struct {
	cfg      *config.Config
	runner   step.Runner
	store    *state.Store
	ckpt     Checkpointer
	pauser   Pauser
	log      *logging.Logger
	progress ProgressCallback
}

// NewOrchestrator creates an Orchestrator with the required dependencies.
func NewOrchestrator(cfg *config.Config, runner step.Runner, store *state.Store, ckpt Checkpointer, pauser Pauser, log *logging.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		runner: runner,
		store:  store,
		ckpt:   ckpt,
		pauser: pauser,
		log:    log.Component("orchestrator"),
	}
}

// SetProgressCallback configures an optional per-step progress callback,
// typically used for terminal progress display.
func (o *Orchestrator) SetProgressCallback(cb ProgressCallback) {
	o.progress = cb
}

// RunAll executes every phase in declared order.
//
// The starting phase is fromPhase when given; otherwise, when resume is set,
// the checkpoint slot picks it. A phase failure stops the run. When every
// phase completes, the checkpoint slot is cleared (the run is finished and
// there is nothing to resume).
func (o *Orchestrator) RunAll(ctx context.Context, fromPhase string, resume bool, flags Flags) error {
	start := 0
	switch {
	case fromPhase != "":
		idx, ok := o.phaseIndex(fromPhase)
		if !ok {
			return &config.ConfigError{Reason: fmt.Sprintf("unknown phase: %s", fromPhase)}
		}
		start = idx
	case resume:
		if cp, ok := o.ckpt.Load(); ok {
			if idx, found := o.phaseIndex(cp.Phase); found {
				start = idx
				o.log.Infof("resuming from phase %s", cp.Phase)
			}
		}
	}

	for _, ph := range o.cfg.Phases[start:] {
		if err := o.RunPhase(ctx, ph.ID, flags); err != nil {
			return err
		}
	}

	if !flags.DryRun {
		if err := o.ckpt.Clear(); err != nil {
			o.log.Warnf("failed to clear checkpoint after full run: %v", err)
		}
	}
	o.log.Info("all phases completed")
	return nil
}

// RunPhase executes one phase through its state machine.
//
// Re-invoking a COMPLETED phase is a no-op unless force. Under dry-run the
// phase only previews: no ledger writes, no checkpoint updates, no pause.
func (o *Orchestrator) RunPhase(ctx context.Context, phaseID string, flags Flags) error {
	ph, ok := o.cfg.PhaseByID(phaseID)
	if !ok {
		return &config.ConfigError{Reason: fmt.Sprintf("unknown phase: %s", phaseID)}
	}

	if !flags.Force && !flags.DryRun && o.store.HasSucceeded(state.SubjectPhase, ph.ID) {
		o.log.Infof("phase %s already completed, skipping", ph.ID)
		return nil
	}

	steps, err := o.cfg.EnabledSteps(ph.ID)
	if err != nil {
		return err
	}

	if !flags.DryRun {
		if err := o.store.MarkResult(state.SubjectPhase, ph.ID, state.StatusInProgress); err != nil {
			return err
		}
		if err := o.ckpt.Save(ph.ID, ""); err != nil {
			return err
		}
	}

	o.log.Infof("phase %s: %d steps", ph.ID, len(steps))

	results := make([]step.Result, 0, len(steps))
	for i, def := range steps {
		if o.progress != nil {
			o.progress(i+1, len(steps), def.ID())
		}
		if !flags.DryRun {
			if err := o.ckpt.Save(ph.ID, def.ID()); err != nil {
				return err
			}
		}

		res := o.runner.Run(ctx, def, step.Flags{
			DryRun:  flags.DryRun,
			Force:   flags.Force,
			Verbose: flags.Verbose,
		})
		results = append(results, res)

		if res.Outcome == step.OutcomeFailure {
			if !flags.DryRun {
				if markErr := o.store.MarkResult(state.SubjectPhase, ph.ID, state.StatusFailed); markErr != nil {
					o.log.Warnf("failed to record phase failure: %v", markErr)
				}
			}
			return &Error{Phase: ph.ID, Step: def.ID(), Err: res.Err}
		}
	}

	if !flags.DryRun {
		if err := o.store.MarkResult(state.SubjectPhase, ph.ID, state.StatusCompleted); err != nil {
			return err
		}
	}

	decision, err := o.pauser.MaybePause(ph, results, breakpoint.Flags{
		DryRun:          flags.DryRun,
		SkipBreakpoints: flags.SkipBreakpoints,
		AutoConfirm:     flags.AutoConfirm,
	})
	if err != nil {
		return err
	}
	if decision != breakpoint.Continue {
		return ErrRunStopped
	}
	return nil
}

// RunStep executes a single step by id, outside phase aggregation.
//
// The checkpoint still tracks the transition so an interrupted single-step
// run resumes at the right phase.
func (o *Orchestrator) RunStep(ctx context.Context, stepID string, flags Flags) error {
	def, ok := o.cfg.StepByID(stepID)
	if !ok {
		return &config.ConfigError{Reason: fmt.Sprintf("unknown step: %s", stepID)}
	}
	if !o.cfg.GroupEnabled(def.Group) {
		o.log.Warnf("step %s belongs to disabled group %q; running anyway because it was requested explicitly", stepID, def.Group)
	}

	if !flags.DryRun {
		if err := o.ckpt.Save(def.Phase, def.ID()); err != nil {
			return err
		}
	}

	res := o.runner.Run(ctx, def, step.Flags{
		DryRun:  flags.DryRun,
		Force:   flags.Force,
		Verbose: flags.Verbose,
	})
	if res.Outcome == step.OutcomeFailure {
		return &Error{Phase: def.Phase, Step: def.ID(), Err: res.Err}
	}
	return nil
}

func (o *Orchestrator) phaseIndex(id string) (int, bool) {
	for i, ph := range o.cfg.Phases {
		if ph.ID == id {
			return i, true
		}
	}
	return 0, false
}
