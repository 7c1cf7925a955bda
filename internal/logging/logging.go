// Package logging provides structured logging using Go's slog package.
package logging

import (
	"log/slog"
	"os"
	"time"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger
)

func init() {
	// Initialize with a default logger (text format, Info level)
	InitLogger(LevelInfo, FormatText)
}

// Level represents a log level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// Format represents a log output format.
type Format int

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON Format = iota
	// FormatText outputs logs in human-readable text format.
	FormatText
)

// InitLogger initializes the global logger with the specified level and format.
func InitLogger(level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// GetLogger returns the global logger instance.
func GetLogger() *slog.Logger {
	return defaultLogger
}

// Helper functions for common logging patterns

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// PhaseStart logs the start of a pipeline phase.
func PhaseStart(phase string, handlers, documents int, args ...any) {
	allArgs := []any{
		"phase", phase,
		"handlers", handlers,
		"documents", documents,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("phase_start", allArgs...)
}

// PhaseDone logs the completion of a pipeline phase.
func PhaseDone(phase string, duration time.Duration, args ...any) {
	allArgs := []any{
		"phase", phase,
		"duration_ms", duration.Milliseconds(),
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("phase_done", allArgs...)
}

// HandlerDispatch logs dispatch of a handler's phase hook.
func HandlerDispatch(phase, handler string, args ...any) {
	allArgs := []any{
		"phase", phase,
		"handler", handler,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("handler_dispatch", allArgs...)
}

// ModelLoad logs model loading events.
func ModelLoad(model, dir string, types int, args ...any) {
	allArgs := []any{
		"model", model,
		"dir", dir,
		"types", types,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("model_load", allArgs...)
}

// TypeSkipped logs a type declaration skipped during model loading.
func TypeSkipped(model, category, reason string, args ...any) {
	allArgs := []any{
		"model", model,
		"category", category,
		"reason", reason,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Warn("type_skipped", allArgs...)
}

// RenderTask logs an external render task outcome.
func RenderTask(command string, success bool, duration time.Duration, args ...any) {
	allArgs := []any{
		"command", command,
		"success", success,
		"duration_ms", duration.Milliseconds(),
	}
	allArgs = append(allArgs, args...)
	if success {
		defaultLogger.Debug("render_task", allArgs...)
	} else {
		defaultLogger.Warn("render_task", allArgs...)
	}
}

// CacheDecision logs an incremental-build cache decision.
func CacheDecision(path string, dirty bool, reason string, args ...any) {
	allArgs := []any{
		"path", path,
		"dirty", dirty,
		"reason", reason,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("cache_decision", allArgs...)
}
