package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "DEBUG", want: slog.LevelDebug},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "trace", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "info", "json")
	require.NoError(t, err)

	logger.Debug("Hidden")
	logger.Info("Backup started", "database", "app")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Backup started", line["msg"])
	assert.Equal(t, "app", line["database"])
}

func TestNewFileLogger(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "pgbackup.log")

	logger, file, err := NewFileLogger(&console, "info", "text", path)
	require.NoError(t, err)

	logger.Debug("Scanning dump", "bytes", 42)
	logger.Info("Upload completed")
	require.NoError(t, file.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"), "file receives debug records")
	assert.NotContains(t, console.String(), "Scanning dump")
	assert.Contains(t, console.String(), "Upload completed")
}
