package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, LevelInfo, cfg.Level)
	assert.Equal(t, FormatText, cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		level   LogLevel
		enabled slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{LogLevel("bogus"), slog.LevelInfo}, // falls back to info
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			logger, err := New(Config{Level: tt.level, Format: FormatText, Output: "stderr"})
			require.NoError(t, err)
			assert.True(t, logger.Enabled(nil, tt.enabled))
		})
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "gvmbridge.log")

	logger, err := New(Config{Level: LevelInfo, Format: FormatJSON, Output: path})
	require.NoError(t, err)

	logger.Info("hello", "scan_id", "abc")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "abc")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	logger := &Logger{Logger: slog.New(handler)}

	logger.InfoScan("scan started", "scan-1", "targets", "192.168.1.1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "scan started", entry["msg"])
	assert.Equal(t, "scan-1", entry["scan_id"])
	assert.Equal(t, "192.168.1.1", entry["targets"])
}

func TestDomainHelpers(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	logger := &Logger{Logger: slog.New(handler)}

	logger.InfoSession("session established", "transport", "unix")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "gmp", entry["component"])
	assert.Equal(t, "unix", entry["transport"])
}

func TestWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	logger := &Logger{Logger: slog.New(handler)}

	logger.WithComponent("poller").WithScanID("scan-2").Info("poll complete")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "poller", entry["component"])
	assert.Equal(t, "scan-2", entry["scan_id"])
}

func TestSetDefault(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	SetDefault(&Logger{Logger: slog.New(handler)})

	Info("via default")
	assert.Contains(t, buf.String(), "via default")
}
