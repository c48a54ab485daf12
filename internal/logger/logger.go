// Package logger provides structured logging for the engine process: the
// event bus and control surface log through a single *Logger built from
// LoggingConfig at startup.
package logger

import (
	"log/slog"
	"os"

	"github.com/dibenedetto/meshade/internal/config"
)

// Logger wraps slog.Logger with execution-scoping helpers used by the
// event bus and control surface.
type Logger struct {
	logger *slog.Logger
}

// New builds a logger from configuration: json or text output, level
// filtered, with source locations attached only at debug level.
func New(cfg config.LoggingConfig) *Logger {
	level := levelFromString(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}
	return &Logger{logger: slog.New(newHandler(cfg.Format, opts))}
}

func newHandler(format string, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.NewTextHandler(os.Stdout, opts)
}

// With attaches arbitrary key/value attribute pairs to every subsequent
// record logged through the returned logger.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// WithExecution scopes a logger to one workflow run, attaching the
// workflow name and execution id (spec §4.2 event fields) so records
// from a run's node lifecycle can be correlated back to it. An empty
// executionID is omitted.
func (l *Logger) WithExecution(workflowName, executionID string) *Logger {
	if executionID == "" {
		return l.With("workflow", workflowName)
	}
	return l.With("workflow", workflowName, "execution_id", executionID)
}

// Debug logs a debug-level record.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.logger.Debug(msg, args...)
}

// Info logs an info-level record.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.logger.Info(msg, args...)
}

// Warn logs a warning-level record.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.logger.Warn(msg, args...)
}

// Error logs an error-level record.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.logger.Error(msg, args...)
}

// levelFromString maps a configured level name to slog.Level, defaulting
// to info on an unrecognized value.
func levelFromString(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var defaultLogger *Logger

func init() {
	defaultLogger = New(config.LoggingConfig{Level: "info", Format: "json"})
}

// Default returns the process-wide fallback logger used by components
// that are not handed an explicit *Logger (nil-safe call sites in
// eventbus and server construct with this).
func Default() *Logger {
	return defaultLogger
}

// SetDefault replaces the process-wide fallback logger. Called once from
// cmd/server/main.go after configuration is loaded.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
