// Package logging sets up structured logging. Logs belong on stderr, since
// stdout carries preprocessor output.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Format is a log output format.
type Format int

// Format constants.
const (
	FormatText Format = iota
	FormatJSON
)

// ParseLevel parses a level name: debug, info, warn, or error.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// ParseFormat parses a format name: text or json.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("unknown log format %q", name)
	}
}

// New returns a logger writing to w.
func New(w io.Writer, level slog.Level, format Format) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	}
	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Init builds a logger writing to w from level and format names, and makes
// it the slog default.
func Init(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	fmtt, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	log := New(w, lvl, fmtt)
	slog.SetDefault(log)
	return log, nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return New(io.Discard, slog.LevelError+1, FormatText)
}
