package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"stackpilot/internal/logging"
)

// lockFileName is the run lock under the state directory.
const lockFileName = "lock"

// ErrLocked indicates another orchestrator instance appears to be active
// against the same state directory. Concurrent writers would corrupt the
// last-writer-wins ledger, so the engine refuses to start.
type ErrLocked struct {
	PID   int
	RunID string
}

func (e *ErrLocked) Error() string {
	return fmt.Sprintf("another run appears active (pid %d, run %s); wait for it to finish or remove the stale lock", e.PID, e.RunID)
}

type lockRecord struct {
	PID       int       `json:"pid"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

// Lock is a held run lock. Release it when the run ends.
type Lock struct {
	path string
}

// AcquireLock claims exclusive ownership of the state directory for this run.
//
// A lock left by a process that no longer exists is reclaimed with a warning;
// a lock whose pid is still alive returns [ErrLocked].
func AcquireLock(dir, runID string, log *logging.Logger) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	path := filepath.Join(dir, lockFileName)

	if data, err := os.ReadFile(path); err == nil {
		var rec lockRecord
		if json.Unmarshal(data, &rec) == nil && pidAlive(rec.PID) {
			return nil, &ErrLocked{PID: rec.PID, RunID: rec.RunID}
		}
		log.Warnf("reclaiming stale run lock at %s", path)
	}

	rec := lockRecord{PID: os.Getpid(), RunID: runID, StartedAt: time.Now()}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run lock: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write run lock: %w", err)
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file. Releasing twice is harmless.
func (l *Lock) Release() {
	os.Remove(l.path)
}

// pidAlive reports whether a process with the given pid exists.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
