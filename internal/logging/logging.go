// Package logging builds the slog loggers used across the controller.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelCritical marks hardware conditions that leave the compressor in an
// unverified or unintended state.
const LevelCritical = slog.Level(12)

// New returns a text logger writing to stdout and, when filePath is set, to
// that file as well. If the file cannot be opened it logs to stdout only.
// The returned closer closes the file; it is never nil.
func New(level string, filePath string) (*slog.Logger, io.Closer) {
	var w io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	var openErr error
	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			w = io.MultiWriter(os.Stdout, f)
			closer = f
		} else {
			openErr = err
		}
	}
	l := NewWithWriter(w, ParseLevel(level))
	if openErr != nil {
		l.Error("failed to open log file", "path", filePath, "err", openErr)
	}
	return l, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewWithWriter returns a text logger on w.
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevel,
	})
	return slog.New(h)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "critical":
		return LevelCritical
	default:
		return slog.LevelInfo
	}
}

// Critical logs msg at LevelCritical.
func Critical(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), LevelCritical, msg, args...)
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelCritical {
		a.Value = slog.StringValue("CRITICAL")
	}
	return a
}
