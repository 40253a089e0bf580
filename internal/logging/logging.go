// Package logging provides structured event emission for the orchestrator.
//
// Every run writes a dedicated log file under <stateDir>/logs/ in addition to
// the terminal stream. The output format is selected by configuration:
//
//   - "plain" renders human-readable lines ("[LEVEL] message")
//   - "json" renders one structured object per line ({ts, level, script, msg, ...})
//
// Key types:
//   - [Logger] wraps zerolog with run-scoped fields (run_id) and per-component
//     child loggers via [Logger.Component]
//   - [Options] carries the format, level, and retention settings
//
// Old run logs are rotated (gzip-compressed) after Options.RotateAfterDays and
// deleted after Options.CleanupAfterDays; both sweeps happen at logger startup.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures logger construction.
//
// Zero values are usable: level defaults to "info", format to "plain", and a
// zero retention setting disables the corresponding sweep.
type Options struct {
	// Level is the minimum level emitted: trace, debug, info, warn, error.
	Level string

	// Format selects "plain" (console-style) or "json" output.
	Format string

	// Dir is the directory for per-run log files. Empty disables file output.
	Dir string

	// RotateAfterDays gzip-compresses run logs older than this many days.
	// Zero disables rotation.
	RotateAfterDays int

	// CleanupAfterDays deletes run logs (compressed or not) older than this
	// many days. Zero disables cleanup.
	CleanupAfterDays int

	// Quiet suppresses the terminal stream (file output is unaffected).
	// Used by dry-run-oriented tests and the status command.
	Quiet bool
}

// Logger emits structured log events for orchestrator components.
//
// A Logger is immutable; [Logger.Component] and [Logger.WithField] return
// children carrying additional fields. Create the root logger with [New],
// which stamps a fresh run_id onto every event of the run.
type Logger struct {
	zlog  zerolog.Logger
	runID string
	path  string
}

// New creates the root logger for a run.
//
// If opts.Dir is set, the directory is created, retention sweeps run, and a
// run-<timestamp>.log file is opened for the duration of the process. The
// file shares the process lifetime; it is not closed explicitly.
func New(opts Options) (*Logger, error) {
	runID := uuid.NewString()

	writers := make([]io.Writer, 0, 2)
	if !opts.Quiet {
		writers = append(writers, terminalWriter(opts.Format))
	}

	var path string
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		sweepLogs(opts.Dir, opts.RotateAfterDays, opts.CleanupAfterDays)

		path = filepath.Join(opts.Dir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		if opts.Format == FormatPlain {
			writers = append(writers, zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339, NoColor: true})
		} else {
			writers = append(writers, f)
		}
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zlog := zerolog.New(out).With().
		Timestamp().
		Str("run_id", runID).
		Logger().
		Level(parseLevel(opts.Level))

	return &Logger{zlog: zlog, runID: runID, path: path}, nil
}

// Formats accepted by [Options.Format].
const (
	FormatPlain = "plain"
	FormatJSON  = "json"
)

// NewNop returns a logger that discards everything. Intended for tests.
func NewNop() *Logger {
	return &Logger{zlog: zerolog.New(io.Discard)}
}

// RunID returns the unique identifier stamped onto this run's events.
func (l *Logger) RunID() string { return l.runID }

// FilePath returns the run log file path, or empty if file output is disabled.
func (l *Logger) FilePath() string { return l.path }

// Component returns a child logger whose events carry a "script" field
// identifying the emitting component or step.
func (l *Logger) Component(name string) *Logger {
	return &Logger{
		zlog:  l.zlog.With().Str("script", name).Logger(),
		runID: l.runID,
		path:  l.path,
	}
}

// WithField returns a child logger carrying one additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		zlog:  l.zlog.With().Interface(key, value).Logger(),
		runID: l.runID,
		path:  l.path,
	}
}

// Debug logs a debug-level message.
func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }

// Debugf logs a formatted debug-level message.
func (l *Logger) Debugf(format string, args ...interface{}) { l.zlog.Debug().Msgf(format, args...) }

// Info logs an info-level message.
func (l *Logger) Info(msg string) { l.zlog.Info().Msg(msg) }

// Infof logs a formatted info-level message.
func (l *Logger) Infof(format string, args ...interface{}) { l.zlog.Info().Msgf(format, args...) }

// Warn logs a warning-level message.
func (l *Logger) Warn(msg string) { l.zlog.Warn().Msg(msg) }

// Warnf logs a formatted warning-level message.
func (l *Logger) Warnf(format string, args ...interface{}) { l.zlog.Warn().Msgf(format, args...) }

// Error logs an error-level message.
func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }

// Errorf logs a formatted error-level message.
func (l *Logger) Errorf(format string, args ...interface{}) { l.zlog.Error().Msgf(format, args...) }

// StepResult logs a step outcome with its duration as a structured event.
func (l *Logger) StepResult(stepID, outcome string, d time.Duration) {
	l.zlog.Info().
		Str("script", stepID).
		Str("outcome", outcome).
		Dur("duration", d).
		Msg("step finished")
}

func terminalWriter(format string) io.Writer {
	if format == FormatJSON {
		return os.Stderr
	}
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "info", "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
