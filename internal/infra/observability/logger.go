// Package observability provides leveled logging, lightweight tracing,
// and Prometheus metrics shared across the evaluator, chooser, and
// scheduler packages.
package observability

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

// Level is the process-wide debug verbosity (§6), checked before every
// log call so a disabled level costs a single atomic load.
type Level int32

const (
	LevelNone Level = iota
	LevelError
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "NONE"
	case LevelError:
		return "ERROR"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// currentLevel is the single process-wide verbosity switch. Reading it is
// one atomic load; SetLevel writes it the same way.
var currentLevel atomic.Int32

func init() {
	currentLevel.Store(int32(LevelInfo))
}

// SetLevel changes the process-wide debug level.
func SetLevel(l Level) {
	currentLevel.Store(int32(l))
}

// CurrentLevel returns the process-wide debug level.
func CurrentLevel() Level {
	return Level(currentLevel.Load())
}

var base = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

// Logger is a level-gated structured logger: calls below the current
// process level are skipped before any argument is formatted.
type Logger struct {
	component string
}

// New returns a Logger tagged with component, attached to every record.
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) enabled(level Level) bool {
	return CurrentLevel() >= level
}

// Debug logs at DEBUG if the process level permits it.
func (l *Logger) Debug(msg string, args ...any) {
	if !l.enabled(LevelDebug) {
		return
	}
	base.Debug(msg, append([]any{"component", l.component}, args...)...)
}

// Info logs at INFO if the process level permits it.
func (l *Logger) Info(msg string, args ...any) {
	if !l.enabled(LevelInfo) {
		return
	}
	base.Info(msg, append([]any{"component", l.component}, args...)...)
}

// Error logs at ERROR if the process level permits it.
func (l *Logger) Error(msg string, args ...any) {
	if !l.enabled(LevelError) {
		return
	}
	base.Error(msg, append([]any{"component", l.component}, args...)...)
}

// WithTrace attaches the context's trace ID to subsequent log calls made
// through the returned Logger, for correlating a log line with a span
// recorded by Tracer.
func (l *Logger) WithTrace(ctx context.Context) *Logger {
	traceID := traceIDFromContext(ctx)
	if traceID == "" {
		return l
	}
	return &Logger{component: l.component + " trace=" + traceID}
}
