package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	Configure(buf, "json")
	prev := GetLogLevel()
	t.Cleanup(func() {
		SetLogLevel(prev)
		Configure(os.Stderr, "console")
	})
	return buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{"Debug", "DEBUG", slog.LevelDebug},
		{"Lowercase", "warn", slog.LevelWarn},
		{"Crit maps to error", "crit", slog.LevelError},
		{"Unknown", "FNORD", slog.LevelInfo},
		{"Empty", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestStructuredAttrs(t *testing.T) {
	buf := captureJSON(t)
	SetLogLevel(slog.LevelInfo)

	Default().With(slog.String("service", "file")).Warn("delivery failed",
		slog.String("target", "f01"),
		slog.Int("attempt", 2),
		slog.Any("error", errors.New("disk full")),
		slog.Group("item", slog.String("topic", "a/b")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "warn", rec["level"])
	require.Equal(t, "delivery failed", rec["message"])
	require.Equal(t, "file", rec["service"])
	require.Equal(t, "f01", rec["target"])
	require.EqualValues(t, 2, rec["attempt"])
	require.Equal(t, "disk full", rec["error"])
	require.Equal(t, "a/b", rec["item.topic"])
}

func TestLevelFiltering(t *testing.T) {
	buf := captureJSON(t)
	SetLogLevel(slog.LevelWarn)

	Info("hidden")
	Debug("hidden")
	require.Zero(t, buf.Len())

	Error("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestHCLogAdapter(t *testing.T) {
	buf := captureJSON(t)
	SetLogLevel(slog.LevelDebug)

	l := NewHCLogAdapter("print").With("pid", 42)
	require.True(t, l.IsDebug())
	require.Equal(t, hclog.Debug, l.GetLevel())
	l.Log(hclog.Info, "plugin started")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "print", rec["plugin"])
	require.EqualValues(t, 42, rec["pid"])
	require.Equal(t, "print.sub", l.Named("sub").Name())
}
