// Package logger provides the process-wide structured logger.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Log is the global logger instance. Components log through this rather
// than the bare "log" package.
var Log *slog.Logger

var level slog.LevelVar

// Init sets up the global logger at the given level (debug/info/warn/error).
func Init(levelStr string) {
	SetLevel(levelStr)
	Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: &level,
	}))
}

// SetLevel changes the log level at runtime.
func SetLevel(levelStr string) {
	var lvl slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	level.Set(lvl)
}

func ensure() {
	if Log == nil {
		Init("info")
	}
}

func Debug(msg string, args ...any) {
	ensure()
	Log.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	ensure()
	Log.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	ensure()
	Log.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	ensure()
	Log.Error(msg, args...)
}

// With returns a logger scoped to a component, e.g. logger.With("component", "scanner").
func With(args ...any) *slog.Logger {
	ensure()
	return Log.With(args...)
}
