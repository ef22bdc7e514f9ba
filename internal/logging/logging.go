// Package logging builds the process-wide slog logger. Components derive
// their own loggers from it with With("component", ...).
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New creates a text slog.Logger on stderr at the given level. Unrecognized
// level strings fall back to info so a config typo never floods the output
// with debug noise.
func New(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
}

func parseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
