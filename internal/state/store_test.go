package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackpilot/internal/logging"
)

func newTestStore(t *testing.T, dir string, strict bool) *Store {
	t.Helper()
	s, err := NewStore(dir, strict, logging.NewNop())
	require.NoError(t, err)
	return s
}

func TestStore_MarkAndQuery(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir, false)

	assert.False(t, s.HasSucceeded(SubjectStep, "base/init"))

	require.NoError(t, s.MarkResult(SubjectStep, "base/init", StatusCompleted))
	assert.True(t, s.HasSucceeded(SubjectStep, "base/init"))

	// Same id under a different type is a different subject.
	assert.False(t, s.HasSucceeded(SubjectPhase, "base/init"))
}

func TestStore_LastWriterWins(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir, false)

	require.NoError(t, s.MarkResult(SubjectStep, "base/init", StatusCompleted))
	require.NoError(t, s.MarkResult(SubjectStep, "base/init", StatusFailed))

	assert.False(t, s.HasSucceeded(SubjectStep, "base/init"))
	assert.Len(t, s.Entries(), 1)

	e, ok := s.Get(SubjectStep, "base/init")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, e.Status)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir, false)
	require.NoError(t, s.MarkResult(SubjectStep, "base/init", StatusCompleted))
	require.NoError(t, s.MarkResult(SubjectPhase, "base", StatusInProgress))

	reopened := newTestStore(t, dir, false)
	assert.True(t, reopened.HasSucceeded(SubjectStep, "base/init"))

	e, ok := reopened.Get(SubjectPhase, "base")
	require.True(t, ok)
	assert.Equal(t, StatusInProgress, e.Status)
}

func TestStore_CorruptLinesSkipped(t *testing.T) {
	dir := t.TempDir()
	ledger := filepath.Join(dir, ledgerFileName)
	content := `{"type":"step","id":"base/init","status":"completed","timestamp":"2026-01-02T15:04:05Z"}
this is not json
{"type":"step","id":"base/extras","status":"failed","timestamp":"2026-01-02T15:05:05Z"}
{"bogus": true}
`
	require.NoError(t, os.WriteFile(ledger, []byte(content), 0o644))

	s := newTestStore(t, dir, false)
	assert.True(t, s.HasSucceeded(SubjectStep, "base/init"))
	assert.Len(t, s.Entries(), 2)
}

func TestStore_CorruptLinesFatalInStrictMode(t *testing.T) {
	dir := t.TempDir()
	ledger := filepath.Join(dir, ledgerFileName)
	require.NoError(t, os.WriteFile(ledger, []byte("garbage\n"), 0o644))

	_, err := NewStore(dir, true, logging.NewNop())
	var corrupt *CorruptRecordError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, 1, corrupt.Line)
}

func TestStore_Reset(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir, false)
	require.NoError(t, s.MarkResult(SubjectStep, "a", StatusCompleted))
	require.NoError(t, s.MarkResult(SubjectStep, "b", StatusCompleted))
	require.NoError(t, s.MarkResult(SubjectPhase, "p", StatusCompleted))

	require.NoError(t, s.Reset(SubjectStep, "a"))
	assert.False(t, s.HasSucceeded(SubjectStep, "a"))
	assert.True(t, s.HasSucceeded(SubjectStep, "b"))

	require.NoError(t, s.Reset(SubjectStep, ResetAll))
	assert.False(t, s.HasSucceeded(SubjectStep, "b"))
	assert.True(t, s.HasSucceeded(SubjectPhase, "p"))

	require.NoError(t, s.ResetEverything())
	assert.Empty(t, s.Entries())
}

func TestStore_CountByStatus(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir, false)
	require.NoError(t, s.MarkResult(SubjectStep, "a", StatusCompleted))
	require.NoError(t, s.MarkResult(SubjectStep, "b", StatusCompleted))
	require.NoError(t, s.MarkResult(SubjectStep, "c", StatusFailed))

	assert.Equal(t, 2, s.CountByStatus(SubjectStep, StatusCompleted))
	assert.Equal(t, 1, s.CountByStatus(SubjectStep, StatusFailed))
	assert.Equal(t, 0, s.CountByStatus(SubjectPhase, StatusCompleted))
}
