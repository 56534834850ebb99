// Package logging builds the process-diagnostic logger shared by the
// enqueue protocol and the observer loops. It never touches a queue file's
// own on-disk content (see internal/queue for that fixed plain-text
// format) — it only writes diagnostics to the process's own stderr.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds a text-handler *slog.Logger writing to w at the given level.
// An empty level string defaults to info. Recognized levels: debug, info,
// warn, error.
func New(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(handler)
}

// FromEnv builds a logger using FNQ_LOG_LEVEL (default info), writing to
// os.Stderr unless quiet is true, in which case diagnostics are discarded.
func FromEnv(quiet bool) *slog.Logger {
	if quiet {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return New(os.Stderr, os.Getenv("FNQ_LOG_LEVEL"))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
