package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), "ParseLevel(%q)", tt.input)
	}
}

func TestNewLoggerTo_Formats(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, &Config{Level: "debug", Format: "text"})
	l.Debug("hello", "collection", "users")
	require.Contains(t, buf.String(), "collection=users")

	buf.Reset()
	l = NewLoggerTo(&buf, nil)
	l.Debug("hidden")
	l.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("nothing")
	assert.NotNil(t, l.With("k", "v"))
}
