// Package logger builds the process logger from configuration.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects level and output format.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// New returns a logger writing to stderr.
func New(opts Options) *slog.Logger {
	return NewWriter(os.Stderr, opts)
}

// NewWriter returns a logger writing to w.
func NewWriter(w io.Writer, opts Options) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var h slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	return slog.New(h)
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Discard returns a logger that drops everything. Tests use it.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
