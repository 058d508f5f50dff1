// Package loggy wraps log/slog with a process-wide logger and request scoped helpers
package loggy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

var (
	globalLogger *Logger
	once         sync.Once
)

// Config configures the logger
type Config struct {
	Level      slog.Level
	Format     string // "json" or "text"
	Output     string // "stdout", "stderr", or a file path
	AddSource  bool
	TimeFormat string // Empty keeps slog's default
}

// Logger wraps slog.Logger and tags every record with the caller's file and line
type Logger struct {
	slogger *slog.Logger
}

// Init builds the global logger once. Later calls are no-ops.
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		var output io.Writer
		output, err = openOutput(cfg.Output)
		if err != nil {
			return
		}

		opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}
		if cfg.TimeFormat != "" {
			opts.ReplaceAttr = func(_ []string, a slog.Attr) slog.Attr {
				if t, ok := a.Value.Any().(time.Time); ok && a.Key == slog.TimeKey {
					return slog.String(a.Key, t.Format(cfg.TimeFormat))
				}
				return a
			}
		}

		var handler slog.Handler = slog.NewTextHandler(output, opts)
		if cfg.Format == "json" {
			handler = slog.NewJSONHandler(output, opts)
		}
		globalLogger = &Logger{slogger: slog.New(handler)}
	})

	if err != nil {
		NewNoopLogger()
	}
	return err
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	return globalLogger
}

// NewNoopLogger installs and returns a global logger that discards everything
func NewNoopLogger() *Logger {
	globalLogger = &Logger{
		slogger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})),
	}
	return globalLogger
}

// NewWithWriter creates a logger writing text records to w without touching
// the global logger. Tests use it to assert on log output.
func NewWithWriter(w io.Writer, level slog.Level) *Logger {
	return &Logger{
		slogger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})),
	}
}

// Debug logs at debug level on the global logger
func Debug(msg string, args ...any) { globalLogger.log(slog.LevelDebug, msg, args...) }

// Info logs at info level on the global logger
func Info(msg string, args ...any) { globalLogger.log(slog.LevelInfo, msg, args...) }

// Warn logs at warn level on the global logger
func Warn(msg string, args ...any) { globalLogger.log(slog.LevelWarn, msg, args...) }

// Error logs at error level on the global logger
func Error(msg string, args ...any) { globalLogger.log(slog.LevelError, msg, args...) }

func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

func (l *Logger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

func (l *Logger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// With returns a Logger that adds args to every record
func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.slogger == nil {
		return l
	}
	return &Logger{slogger: l.slogger.With(args...)}
}

// log must be called directly from a level method so the caller is two
// frames up. Records below the handler's level are dropped before any formatting.
func (l *Logger) log(level slog.Level, msg string, args ...any) {
	if l == nil || l.slogger == nil {
		return
	}
	ctx := context.Background()
	if !l.slogger.Enabled(ctx, level) {
		return
	}

	r := slog.NewRecord(time.Now(), level, msg, 0)
	if _, file, line, ok := runtime.Caller(2); ok {
		r.AddAttrs(slog.String("source", fmt.Sprintf("%s:%d", filepath.Base(file), line)))
	}
	r.Add(args...)
	_ = l.slogger.Handler().Handle(ctx, r)
}
