package phase

import (
	"context"

	"stackpilot/internal/breakpoint"
	"stackpilot/internal/config"
	"stackpilot/internal/step"
)

// MockRunner is a step.Runner for testing.
type MockRunner struct {
	// Executed records step ids in invocation order.
	Executed []string
	// Flags records the flag set each invocation received.
	Flags []step.Flags
	// FailOn makes the named step return a failure result.
	FailOn string
	// SkipOn makes the named step return a skipped result.
	SkipOn string
	// Touched is attached to every successful result.
	Touched []string
}

func (m *MockRunner) Run(ctx context.Context, def config.StepConfig, flags step.Flags) step.Result {
	id := def.ID()
	m.Executed = append(m.Executed, id)
	m.Flags = append(m.Flags, flags)

	switch id {
	case m.FailOn:
		return step.Result{StepID: id, Outcome: step.OutcomeFailure, Err: &step.ExitStatusError{StepID: id, Code: 1}}
	case m.SkipOn:
		return step.Result{StepID: id, Outcome: step.OutcomeSkipped}
	default:
		return step.Result{StepID: id, Outcome: step.OutcomeSuccess, Touched: m.Touched}
	}
}

// MockPauser is a Pauser for testing.
type MockPauser struct {
	// Decision is returned on every pause consultation.
	Decision breakpoint.Decision
	// Paused records the phase ids consulted.
	Paused []string
	// LastFlags is the flag set from the most recent consultation.
	LastFlags breakpoint.Flags
}

func (m *MockPauser) MaybePause(ph config.PhaseConfig, results []step.Result, flags breakpoint.Flags) (breakpoint.Decision, error) {
	m.Paused = append(m.Paused, ph.ID)
	m.LastFlags = flags
	return m.Decision, nil
}
