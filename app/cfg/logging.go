package cfg

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger creates a text slog.Logger; debug forces the debug level.
func NewLogger(w io.Writer, level string, debug bool) *slog.Logger {
	lvl := levelFromString(level)
	if debug {
		lvl = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
