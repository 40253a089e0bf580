// Package step executes single installation steps.
//
// A step is an opaque external executable identified by "<phase>/<name>". The
// orchestrator knows nothing about what a step produces; the contract is:
//
//   - the step is invoked with the resolved configuration in its environment
//     (STACKPILOT_* variables) and the flag set {--dry-run, --force, --verbose}
//   - it performs its side effects idempotently and exits 0 on success
//   - under --dry-run it previews without mutating anything
//   - lines on stdout of the form "touched: <path>" report files the step
//     wrote, which feed the breakpoint handoff document
//
// [Executor.Run] enforces the hard wall-clock timeout, applies the
// skip-if-done policy against the state ledger, and records every outcome as
// a structured log event with its duration.
package step

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"stackpilot/internal/config"
	"stackpilot/internal/logging"
	"stackpilot/internal/state"
)

// touchedPrefix marks stdout lines reporting a written file.
const touchedPrefix = "touched:"

// Flags is the per-invocation flag set forwarded to steps.
type Flags struct {
	DryRun  bool
	Force   bool
	Verbose bool
}

// Outcome classifies a step invocation.
type Outcome string

// Step outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// Result is the outcome of one step invocation.
type Result struct {
	StepID   string
	Outcome  Outcome
	Duration time.Duration
	TimedOut bool

	// Touched lists files the step reported writing, in report order.
	Touched []string

	// Err carries the failure cause ([*TimeoutError] or [*ExitStatusError]).
	Err error
}

// TimeoutError indicates a step exceeded the global command timeout and was
// forcibly terminated.
type TimeoutError struct {
	StepID string
	Limit  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step %s timed out after %s", e.StepID, e.Limit)
}

// ExitStatusError indicates a step exited nonzero.
type ExitStatusError struct {
	StepID string
	Code   int
}

func (e *ExitStatusError) Error() string {
	return fmt.Sprintf("step %s failed with exit code %d", e.StepID, e.Code)
}

// Runner is the interface the phase orchestrator drives steps through.
// [Executor] is the production implementation.
type Runner interface {
	Run(ctx context.Context, def config.StepConfig, flags Flags) Result
}

// Executor runs external steps under the engine's policies.
//
// Use [NewExecutor]. The executor is safe for sequential reuse across a run;
// it is never invoked concurrently (phases and steps are strictly ordered).
type Executor struct {
	cfg   *config.Config
	store *state.Store
	log   *logging.Logger
}

// NewExecutor creates an Executor bound to the run's configuration, ledger,
// and logger.
func NewExecutor(cfg *config.Config, store *state.Store, log *logging.Logger) *Executor {
	return &Executor{cfg: cfg, store: store, log: log.Component("executor")}
}

// Run invokes one step and returns its classified result.
//
// Policy order: required-key validation, skip-if-done (unless force or
// resume-mode=force), dry-run preview (no ledger writes), then the real
// invocation under the configured timeout. The ledger sees in_progress before
// the process starts and completed/failed after it ends; a step is only ever
// marked completed on a clean zero exit.
func (e *Executor) Run(ctx context.Context, def config.StepConfig, flags Flags) Result {
	id := def.ID()
	log := e.log.Component(id)

	for _, key := range def.RequiresKeys {
		if e.cfg.ConfigValue(key) == "" {
			err := fmt.Errorf("step %s requires config key %q which is empty", id, key)
			log.Error(err.Error())
			return Result{StepID: id, Outcome: OutcomeFailure, Err: err}
		}
	}

	if !flags.Force && e.cfg.ResumeMode == "skip" && e.store.HasSucceeded(state.SubjectStep, id) {
		log.Debug("already completed, skipping")
		return Result{StepID: id, Outcome: OutcomeSkipped}
	}

	if flags.DryRun {
		return e.preview(ctx, def, flags, log)
	}

	if err := e.store.MarkResult(state.SubjectStep, id, state.StatusInProgress); err != nil {
		return Result{StepID: id, Outcome: OutcomeFailure, Err: err}
	}

	res := e.invoke(ctx, def, flags, log)

	status := state.StatusCompleted
	if res.Outcome == OutcomeFailure {
		status = state.StatusFailed
	}
	if err := e.store.MarkResult(state.SubjectStep, id, status); err != nil {
		res.Outcome = OutcomeFailure
		res.Err = err
	}

	e.log.StepResult(id, string(res.Outcome), res.Duration)
	return res
}

// preview runs the step's dry-run behavior. Nothing is written to the ledger
// and failures are downgraded to warnings: preview only reports what would
// happen.
func (e *Executor) preview(ctx context.Context, def config.StepConfig, flags Flags, log *logging.Logger) Result {
	flags.DryRun = true
	res := e.invoke(ctx, def, flags, log)
	if res.Outcome == OutcomeFailure {
		log.Warnf("preview exited abnormally: %v", res.Err)
	}
	res.Outcome = OutcomeSuccess
	res.Err = nil
	e.log.StepResult(def.ID(), "preview", res.Duration)
	return res
}

// invoke starts the external process and races it against the timeout.
func (e *Executor) invoke(ctx context.Context, def config.StepConfig, flags Flags, log *logging.Logger) Result {
	id := def.ID()
	timeout := time.Duration(e.cfg.MaxCommandSeconds) * time.Second

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := append([]string(nil), def.Command...)
	if flags.DryRun {
		argv = append(argv, "--dry-run")
	}
	if flags.Force {
		argv = append(argv, "--force")
	}
	if flags.Verbose {
		argv = append(argv, "--verbose")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.cfg.Project.InstallRoot
	cmd.Env = append(os.Environ(), e.stepEnv()...)
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{StepID: id, Outcome: OutcomeFailure, Err: fmt.Errorf("failed to attach stdout: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{StepID: id, Outcome: OutcomeFailure, Err: fmt.Errorf("failed to attach stderr: %w", err)}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{StepID: id, Outcome: OutcomeFailure, Err: fmt.Errorf("failed to start step %s: %w", id, err)}
	}

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Warnf("[stderr] %s", scanner.Text())
		}
	}()

	touched := scanOutput(stdout, flags.Verbose, log)

	waitErr := cmd.Wait()
	<-stderrDone
	duration := time.Since(start)

	res := Result{StepID: id, Duration: duration, Touched: touched}

	if ctx.Err() == context.DeadlineExceeded {
		res.Outcome = OutcomeFailure
		res.TimedOut = true
		res.Err = &TimeoutError{StepID: id, Limit: timeout}
		log.Errorf("timed out after %s, process terminated", timeout)
		return res
	}
	if waitErr != nil {
		code := 1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		res.Outcome = OutcomeFailure
		res.Err = &ExitStatusError{StepID: id, Code: code}
		return res
	}

	res.Outcome = OutcomeSuccess
	return res
}

// scanOutput consumes the step's stdout, collecting touched-file reports and
// echoing everything else when verbose.
func scanOutput(r io.Reader, verbose bool, log *logging.Logger) []string {
	scanner := bufio.NewScanner(r)
	// Steps may emit long lines (package manager output).
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var touched []string
	for scanner.Scan() {
		line := scanner.Text()
		if rest, ok := strings.CutPrefix(line, touchedPrefix); ok {
			touched = append(touched, strings.TrimSpace(rest))
			continue
		}
		if verbose {
			log.Info(line)
		}
	}
	return touched
}

// stepEnv renders the resolved configuration into the environment steps see.
func (e *Executor) stepEnv() []string {
	return []string{
		"STACKPILOT_PROJECT_NAME=" + e.cfg.Project.Name,
		"STACKPILOT_INSTALL_ROOT=" + e.cfg.Project.InstallRoot,
		"STACKPILOT_ADMIN_PASSWORD=" + e.cfg.Project.AdminPassword,
	}
}
