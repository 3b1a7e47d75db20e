// Package logging provides the structured, subsystem-tagged logging used
// throughout the engine. It wraps log/slog with a small fixed API
// (Debug/Info/Warn/Error) keyed by a subsystem name so that log lines from
// the scheduler, the resource pool, and the batch submitter stay easy to
// tell apart without each caller building its own slog.Logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// LogLevel defines the severity of a log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy fmt.Stringer.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SlogLevel converts to the equivalent slog.Level.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Entry is a structured log record, also used by Recent() for replaying the
// last few lines into a CLI report without re-running the command.
type Entry struct {
	Timestamp time.Time
	Level     LogLevel
	Subsystem string
	Message   string
	Err       error
}

var (
	mu      sync.Mutex
	logger  *slog.Logger
	ring    []Entry
	ringCap = 512
)

// Init configures the default logger. Must be called once at process
// startup; safe to call again in tests to redirect output.
func Init(level LogLevel, output io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	handler := slog.NewTextHandler(output, &slog.HandlerOptions{Level: level.SlogLevel()})
	logger = slog.New(handler)
	ring = nil
}

func ensureInit() {
	mu.Lock()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	mu.Unlock()
}

func record(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	ensureInit()
	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	mu.Lock()
	ring = append(ring, Entry{Timestamp: time.Now(), Level: level, Subsystem: subsystem, Message: msg, Err: err})
	if len(ring) > ringCap {
		ring = ring[len(ring)-ringCap:]
	}
	l := logger
	mu.Unlock()

	attrs := []slog.Attr{slog.String("subsystem", subsystem)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.LogAttrs(context.Background(), level.SlogLevel(), msg, attrs...)
}

// Debug logs a debug-level message.
func Debug(subsystem, messageFmt string, args ...interface{}) { record(LevelDebug, subsystem, nil, messageFmt, args...) }

// Info logs an info-level message.
func Info(subsystem, messageFmt string, args ...interface{}) { record(LevelInfo, subsystem, nil, messageFmt, args...) }

// Warn logs a warning.
func Warn(subsystem, messageFmt string, args ...interface{}) { record(LevelWarn, subsystem, nil, messageFmt, args...) }

// Error logs an error with its message formatted separately from err.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	record(LevelError, subsystem, err, messageFmt, args...)
}

// Recent returns a copy of the last n buffered entries (fewer if not enough
// have been logged yet), newest last.
func Recent(n int) []Entry {
	mu.Lock()
	defer mu.Unlock()
	if n > len(ring) || n <= 0 {
		n = len(ring)
	}
	out := make([]Entry, n)
	copy(out, ring[len(ring)-n:])
	return out
}
