package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewMultiLogger_RequiresDir(t *testing.T) {
	_, err := NewMultiLogger(MultiLoggerConfig{Level: "info"})
	assert.Error(t, err)
}

func TestMultiLogger_WritesCategoryFiles(t *testing.T) {
	dir := t.TempDir()
	ml, err := NewMultiLogger(MultiLoggerConfig{Level: "info", LogsDir: dir})
	require.NoError(t, err)

	ml.LogJobEvent("job_finished", zap.String("job_id", "42"))
	ml.LogDetectionEvent("media_recorded", zap.String("context_id", "tab-1"))
	ml.LogAppError("boom")
	require.NoError(t, ml.Close())

	date := time.Now().Format("20060102")
	for category, want := range map[LogCategory]string{
		CategoryJob:       `"job_id":"42"`,
		CategoryDetection: `"context_id":"tab-1"`,
		CategoryError:     `"msg":"boom"`,
	} {
		data, err := os.ReadFile(filepath.Join(dir, string(category)+"-"+date+".log"))
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(data), want), "%s log missing %s", category, want)
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	l, err := New(Config{Level: "debug", Format: "json", OutputPath: path})
	require.NoError(t, err)

	l.Debug("hello", zap.Int("n", 1))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
