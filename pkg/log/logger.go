// Package log provides the structured logger shared by adapters, drivers and repositories.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls logger construction
type Config struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`    // debug, info, warn, error
	Format string `json:"format" yaml:"format" mapstructure:"format"` // json, text
}

// Logger wraps slog.Logger so packages share one logging type
type Logger struct {
	*slog.Logger
}

// NewLogger creates a logger writing to stdout; cfg may be nil for defaults
func NewLogger(cfg *Config) *Logger {
	return NewLoggerTo(os.Stdout, cfg)
}

// NewLoggerTo creates a logger writing to w
func NewLoggerTo(w io.Writer, cfg *Config) *Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel("")}
	format := "json"
	if cfg != nil {
		opts.Level = ParseLevel(cfg.Level)
		if cfg.Format != "" {
			format = strings.ToLower(cfg.Format)
		}
	}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if format == "text" {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(h)}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a child logger carrying the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}
