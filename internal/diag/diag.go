// Package diag routes user-facing status output and warnings. Commands
// report progress through a Sink; warnings are additionally collected so
// they can be repeated in a summary once a long operation finishes.
package diag

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Sink receives diagnostic output from the engine.
type Sink interface {
	// Info reports normal progress.
	Info(msg string, args ...any)

	// Warn reports a recoverable problem. Warnings do not stop the
	// operation but are surfaced prominently to the user.
	Warn(msg string, args ...any)
}

// Logger is the default Sink, writing structured output via slog.
type Logger struct {
	slog *slog.Logger
}

// NewLogger creates a Sink writing human-readable output to w. Verbose
// lowers the level threshold to include debug-ish detail.
func NewLogger(w io.Writer, verbose bool) *Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{slog: slog.New(handler)}
}

// Default returns a Sink writing to stderr at the normal level.
func Default() *Logger {
	return NewLogger(os.Stderr, false)
}

func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Collector wraps a Sink and remembers every warning that passes through,
// so a command can replay them after its main output. Safe for concurrent
// use.
type Collector struct {
	inner Sink

	mu       sync.Mutex
	warnings []string
}

// NewCollector wraps a Sink with warning collection.
func NewCollector(inner Sink) *Collector {
	return &Collector{inner: inner}
}

func (c *Collector) Info(msg string, args ...any) {
	c.inner.Info(msg, args...)
}

func (c *Collector) Warn(msg string, args ...any) {
	c.mu.Lock()
	c.warnings = append(c.warnings, formatWarning(msg, args))
	c.mu.Unlock()
	c.inner.Warn(msg, args...)
}

// Warnings returns the warnings recorded so far, in order.
func (c *Collector) Warnings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.warnings))
	copy(out, c.warnings)
	return out
}

func formatWarning(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	s := msg
	for i := 0; i+1 < len(args); i += 2 {
		s += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	return s
}
