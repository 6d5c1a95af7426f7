package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dunamismax/tileflow/internal/config"
)

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")

	logger, err := New(config.LogConfig{Level: "debug", Format: "json", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Info("rendered tile", zap.String("identifier", "ff139pd0160"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"identifier":"ff139pd0160"`)
	require.Contains(t, string(data), `"msg":"rendered tile"`)
}

func TestNewRejectsBadSettings(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	require.Error(t, err)

	_, err = New(config.LogConfig{Level: "info", Format: "xml"})
	require.Error(t, err)
}

func TestNewConsoleFormat(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "warn", Format: "console"})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zap.InfoLevel))
	require.True(t, logger.Core().Enabled(zap.WarnLevel))
}
