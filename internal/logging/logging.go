// Package logging builds the structured loggers passed through the
// pipeline.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format names accepted by NewHandler.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel maps a level name to a slog level. Unknown names yield Info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// NewHandler returns a text or JSON handler writing to all of w, or to
// stderr when w is empty.
func NewHandler(level slog.Level, format string, w ...io.Writer) slog.Handler {
	var writer io.Writer = os.Stderr
	switch len(w) {
	case 0:
	case 1:
		writer = w[0]
	default:
		writer = io.MultiWriter(w...)
	}

	opts := &slog.HandlerOptions{Level: level}
	if format == FormatJSON {
		return slog.NewJSONHandler(writer, opts)
	}
	return slog.NewTextHandler(writer, opts)
}

// Init installs a default logger writing to stderr and, when logFile is set,
// appending to that file. The returned closer releases the file.
func Init(level slog.Level, format, logFile string) (*slog.Logger, io.Closer, error) {
	writers := []io.Writer{os.Stderr}
	var closer io.Closer = nopCloser{}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}

	logger := slog.New(NewHandler(level, format, writers...))
	slog.SetDefault(logger)
	return logger, closer, nil
}

// New returns a logger with a "component" attribute for module-scoped logging.
func New(parent *slog.Logger, component string) *slog.Logger {
	if parent == nil {
		parent = slog.Default()
	}
	return parent.With(slog.String("component", component))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
