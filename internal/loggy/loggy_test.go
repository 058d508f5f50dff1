package loggy

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo)

	logger.Debug("hidden message")
	logger.Info("visible message", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden message")
	assert.Contains(t, out, "visible message")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "source=loggy_test.go:")
}

func TestGlobalHelpersReportCaller(t *testing.T) {
	var buf bytes.Buffer
	globalLogger = NewWithWriter(&buf, slog.LevelDebug)
	t.Cleanup(func() { NewNoopLogger() })

	Warn("disk almost full", "free", "1%")

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "source=loggy_test.go:")
}

func TestRequestIDContext(t *testing.T) {
	var buf bytes.Buffer
	globalLogger = NewWithWriter(&buf, slog.LevelDebug)
	t.Cleanup(func() { NewNoopLogger() })

	id := NewRequestID()
	assert.True(t, strings.HasPrefix(id, "req-"))

	ctx := WithRequestID(context.Background(), id)
	FromContext(ctx).Info("handled")
	assert.Contains(t, buf.String(), "request_id="+id)
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	global := NewNoopLogger()

	assert.Same(t, global, FromContext(context.Background()))
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger

	assert.NotPanics(t, func() {
		logger.Info("dropped")
		assert.Nil(t, logger.With("k", "v"))
	})
}

func TestOpenOutputCreatesLogDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "unitforge.log")

	w, err := openOutput(path)
	require.NoError(t, err)
	assert.FileExists(t, path)
	_, _ = w.Write([]byte("x"))
}
