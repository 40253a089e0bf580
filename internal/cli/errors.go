package cli

import "fmt"

// ExitError carries a process exit code out of a Cobra RunE function.
//
// Commands never call os.Exit directly; they return an ExitError and
// [Execute] extracts the code after Cobra unwinds. This keeps commands
// testable: a test can run a command and assert on the code without the
// process terminating.
//
// Exit code convention: 0 success or graceful pause, 1 step/phase failure,
// 2 configuration or usage error.
type ExitError struct {
	Code int
}

// Error returns "exit status N", matching the os/exec convention so wrapped
// subprocess failures read consistently.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewExitError creates an [ExitError] with the given code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// IsExitError extracts the code from an [ExitError], reporting whether err is
// one. Returns (0, false) for nil or other error types.
func IsExitError(err error) (int, bool) {
	if exitErr, ok := err.(*ExitError); ok {
		return exitErr.Code, true
	}
	return 0, false
}
