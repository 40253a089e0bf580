// Package state provides the durable bookkeeping for orchestrator runs.
//
// Two records live side by side under the state directory (.stackpilot/):
//
//   - the ledger (state.jsonl): one JSON record per (subject type, subject id)
//     holding the latest status, managed by [Store] with last-writer-wins
//     semantics
//   - the checkpoint (checkpoint.json): a single overwriting slot pointing at
//     the most recently reached phase/step, managed by [CheckpointManager]
//
// The two answer different questions: the ledger answers "what already fully
// succeeded" (skip decisions), the checkpoint answers "where do I resume from"
// (starting phase selection). A run lock ([AcquireLock]) guards both against
// concurrent writers.
package state

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"stackpilot/internal/logging"
)

// SubjectType distinguishes ledger subjects.
type SubjectType string

// Ledger subject types.
const (
	SubjectStep  SubjectType = "step"
	SubjectPhase SubjectType = "phase"
)

// Status is a ledger status value.
type Status string

// Ledger statuses.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ResetAll is the wildcard id accepted by [Store.Reset].
const ResetAll = "*"

// ledgerFileName is the ledger file under the state directory.
const ledgerFileName = "state.jsonl"

// Entry is one ledger record. At most one live entry exists per
// (Type, ID); Timestamp is informational only.
type Entry struct {
	Type      SubjectType `json:"type"`
	ID        string      `json:"id"`
	Status    Status      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

// CorruptRecordError reports a malformed ledger line. It is only returned
// when strict mode is enabled; the default policy skips bad lines with a
// warning so a mangled ledger never blocks forward progress.
type CorruptRecordError struct {
	Path string
	Line int
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt state record at %s:%d", e.Path, e.Line)
}

// Store is the durable ledger of per-subject completion status.
//
// The ledger is a JSON-lines file loaded into a key→latest-entry map. Writes
// are remove-then-append: [Store.MarkResult] replaces any prior entry for the
// key and persists the whole compacted ledger atomically (temp file + rename).
type Store struct {
	path    string
	entries map[string]Entry
	strict  bool
	log     *logging.Logger
}

// NewStore opens (or creates) the ledger under dir.
//
// Corrupt lines are skipped with a warning unless strict is set, in which
// case the first bad line aborts with a [CorruptRecordError].
func NewStore(dir string, strict bool, log *logging.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	s := &Store{
		path:    filepath.Join(dir, ledgerFileName),
		entries: make(map[string]Entry),
		strict:  strict,
		log:     log.Component("state"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open state ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e Entry
		if err := json.Unmarshal(line, &e); err != nil || e.ID == "" || e.Type == "" {
			if s.strict {
				return &CorruptRecordError{Path: s.path, Line: lineNum}
			}
			s.log.Warnf("skipping corrupt state record at line %d", lineNum)
			continue
		}
		// Later lines win: the file may contain stale duplicates if a past
		// run died between append and compaction.
		s.entries[key(e.Type, e.ID)] = e
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read state ledger: %w", err)
	}
	return nil
}

// HasSucceeded reports whether the subject's latest status is completed.
func (s *Store) HasSucceeded(typ SubjectType, id string) bool {
	e, ok := s.entries[key(typ, id)]
	return ok && e.Status == StatusCompleted
}

// Get returns the latest entry for a subject.
func (s *Store) Get(typ SubjectType, id string) (Entry, bool) {
	e, ok := s.entries[key(typ, id)]
	return e, ok
}

// MarkResult records the latest status for a subject, replacing any prior
// entry for the same key, and persists the ledger.
func (s *Store) MarkResult(typ SubjectType, id string, status Status) error {
	s.entries[key(typ, id)] = Entry{
		Type:      typ,
		ID:        id,
		Status:    status,
		Timestamp: time.Now(),
	}
	return s.persist()
}

// Reset deletes the entry for a subject, or every entry of the given type
// when id is [ResetAll], and persists the ledger.
func (s *Store) Reset(typ SubjectType, id string) error {
	if id == ResetAll {
		for k, e := range s.entries {
			if e.Type == typ {
				delete(s.entries, k)
			}
		}
	} else {
		delete(s.entries, key(typ, id))
	}
	return s.persist()
}

// ResetEverything clears the whole ledger.
func (s *Store) ResetEverything() error {
	s.entries = make(map[string]Entry)
	return s.persist()
}

// Entries returns every live entry, ordered by type then id.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CountByStatus counts entries of a type holding the given status.
func (s *Store) CountByStatus(typ SubjectType, status Status) int {
	n := 0
	for _, e := range s.entries {
		if e.Type == typ && e.Status == status {
			n++
		}
	}
	return n
}

// persist writes the compacted ledger atomically (write temp, then rename).
func (s *Store) persist() error {
	var buf []byte
	for _, e := range s.Entries() {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode state entry: %w", err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write state ledger: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write state ledger: %w", err)
	}
	return nil
}

func key(typ SubjectType, id string) string {
	return string(typ) + ":" + id
}
