package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackpilot/internal/logging"
)

func TestCheckpoint_SaveLoadClear(t *testing.T) {
	dir := t.TempDir()
	m := NewCheckpointManager(dir)

	_, ok := m.Load()
	assert.False(t, ok)

	require.NoError(t, m.Save("backend", "backend/setup-database"))
	cp, ok := m.Load()
	require.True(t, ok)
	assert.Equal(t, "backend", cp.Phase)
	assert.Equal(t, "backend/setup-database", cp.Step)
	assert.False(t, cp.Timestamp.IsZero())

	// The slot is overwritten, not appended.
	require.NoError(t, m.Save("frontend", ""))
	cp, ok = m.Load()
	require.True(t, ok)
	assert.Equal(t, "frontend", cp.Phase)
	assert.Empty(t, cp.Step)

	require.NoError(t, m.Clear())
	_, ok = m.Load()
	assert.False(t, ok)

	// Clearing an absent slot is fine.
	require.NoError(t, m.Clear())
}

func TestCheckpoint_UnreadableSlotIsNone(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, checkpointFileName), []byte("{broken"), 0o644))

	m := NewCheckpointManager(dir)
	_, ok := m.Load()
	assert.False(t, ok)
}

func TestLock_AcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir, "run-1", logging.NewNop())
	require.NoError(t, err)

	// A second acquire against the same live pid refuses.
	_, err = AcquireLock(dir, "run-2", logging.NewNop())
	var locked *ErrLocked
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, os.Getpid(), locked.PID)
	assert.Equal(t, "run-1", locked.RunID)

	lock.Release()
	relock, err := AcquireLock(dir, "run-3", logging.NewNop())
	require.NoError(t, err)
	relock.Release()
}

func TestLock_ReclaimsStaleLock(t *testing.T) {
	dir := t.TempDir()
	stale, err := json.Marshal(lockRecord{PID: 0, RunID: "dead-run"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockFileName), stale, 0o644))

	lock, err := AcquireLock(dir, "run-1", logging.NewNop())
	require.NoError(t, err)
	lock.Release()
}
