package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level,
// defaulting to info.
func ParseLevel(level string) slog.Level {
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

// New builds a logger writing to w and installs it as the default. Every
// record carries a session_id unique to this run.
// format: "json" or "text" (defaults to "text")
func New(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler).With("session_id", uuid.NewString())
	slog.SetDefault(logger)
	return logger
}

// Output picks where logs go. A path always wins; otherwise the terminal UI
// discards logs so they don't corrupt the screen, and headless runs use
// stderr. The returned close func is never nil.
func Output(path string, tui bool) (io.Writer, func() error, error) {
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return f, f.Close, nil
	}
	if tui {
		return io.Discard, func() error { return nil }, nil
	}
	return os.Stderr, func() error { return nil }, nil
}
