package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// checkpointFileName is the checkpoint file under the state directory.
const checkpointFileName = "checkpoint.json"

// Checkpoint is the single-slot pointer to the most recently reached
// phase/step. Step is empty while a phase is being entered.
type Checkpoint struct {
	Phase     string    `json:"phase"`
	Step      string    `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckpointManager owns the checkpoint slot.
//
// The slot is overwritten on every phase/step transition and removed on
// full-run completion or explicit reset. A missing or unreadable checkpoint
// is reported as "none", never as an error: the checkpoint only optimizes
// resume, the ledger remains the source of truth for skip decisions.
type CheckpointManager struct {
	path string
}

// NewCheckpointManager creates a manager rooted at the state directory.
func NewCheckpointManager(dir string) *CheckpointManager {
	return &CheckpointManager{path: filepath.Join(dir, checkpointFileName)}
}

// Save overwrites the checkpoint slot.
func (m *CheckpointManager) Save(phase, step string) error {
	cp := Checkpoint{Phase: phase, Step: step, Timestamp: time.Now()}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// Load returns the checkpoint, or ok=false when no usable slot exists.
func (m *CheckpointManager) Load() (Checkpoint, bool) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return Checkpoint{}, false
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil || cp.Phase == "" {
		return Checkpoint{}, false
	}
	return cp, true
}

// Clear removes the checkpoint slot. Clearing an absent slot is a no-op.
func (m *CheckpointManager) Clear() error {
	err := os.Remove(m.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	return nil
}
