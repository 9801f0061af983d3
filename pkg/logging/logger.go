// Package logging provides the small logging surface the rest of the module
// depends on. Components accept a Logger; the command wires a slog-backed
// implementation configured from the application config.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a user-facing level decoupled from slog.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel parses a level name as written in config files.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
}

func (l LogLevel) slog() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is the minimal structured logging interface. Arguments after msg
// are alternating keys and values, as with slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement Logger.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(l *slog.Logger) Logger {
	return &SlogAdapter{Logger: l}
}

// With returns a logger that adds args to every record.
func With(l Logger, args ...any) Logger {
	if s, ok := l.(*SlogAdapter); ok {
		return &SlogAdapter{Logger: s.Logger.With(args...)}
	}
	return l
}

// Options configures New.
type Options struct {
	Level     LogLevel
	Format    string // "json" or "text"
	Output    io.Writer
	AddSource bool
	Component string
}

// New builds a slog-backed Logger.
func New(opts Options) Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: opts.Level.slog(), AddSource: opts.AddSource}
	var h slog.Handler
	if opts.Format == "json" {
		h = slog.NewJSONHandler(out, ho)
	} else {
		h = slog.NewTextHandler(out, ho)
	}
	l := slog.New(h)
	if opts.Component != "" {
		l = l.With("component", opts.Component)
	}
	return NewSlogAdapter(l)
}

// Timer returns a function that logs op with its elapsed duration.
func Timer(l Logger, op string, args ...any) func() {
	start := time.Now()
	return func() {
		l.Debug(op+" completed", append(args, "duration", time.Since(start))...)
	}
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}

// OrNop returns l, or a NoOpLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}
