package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	logger, err := NewLogger(LoggerConfig{Level: "debug", OutputPath: path, Format: "json"})
	require.NoError(t, err)

	logger.Info("flow submitted", zap.String("flow_id", "f-1"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"flow_id":"f-1"`)
	assert.Contains(t, string(data), `"service":"expense-approval"`)
}

func TestFields(t *testing.T) {
	fields := Fields("flow_id", "f-1", 42, "skipped", "error", errors.New("boom"), "dangling")
	require.Len(t, fields, 2)
	assert.Equal(t, "flow_id", fields[0].Key)
	assert.Equal(t, "error", fields[1].Key)
}

func TestKeyValueLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	kv := NewKeyValueLogger(zap.New(core))

	kv.Info("Decision applied", "step_id", "s-1", "outcome", "APPROVED")
	kv.Error("Notification failed", "error", errors.New("timeout"))

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "Decision applied", entries[0].Message)
	assert.Equal(t, "s-1", entries[0].ContextMap()["step_id"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "timeout", entries[1].ContextMap()["error"])
}
