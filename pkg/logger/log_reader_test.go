package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogReader_ReadsMultiLoggerOutput(t *testing.T) {
	dir := t.TempDir()
	ml, err := NewMultiLogger(MultiLoggerConfig{Level: "info", LogsDir: dir})
	require.NoError(t, err)

	ml.LogJobEvent("job_submitted", zap.String("job_id", "42"), zap.String("url", "https://youtu.be/abc"))
	ml.LogJobEvent("job_finished", zap.String("job_id", "42"), zap.String("file_name", "a.mp4"))
	require.NoError(t, ml.Close())

	reader := NewLogReader(dir)
	entries, err := reader.ReadLogs(CategoryJob, time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "job_submitted", entries[0].Message)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "job", entries[0].Category)
	assert.Equal(t, "42", entries[0].Fields["job_id"])
	assert.NotEmpty(t, entries[0].Timestamp)

	last, err := reader.ReadLogs(CategoryJob, time.Now(), 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "job_finished", last[0].Message)

	found, err := reader.SearchLogs(CategoryJob, time.Now(), "A.MP4", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "job_finished", found[0].Message)
}

func TestLogReader_MissingFileAndPlainLines(t *testing.T) {
	dir := t.TempDir()
	reader := NewLogReader(dir)

	entries, err := reader.ReadLogs(CategoryDetection, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	path := reader.GetLogPath(CategoryError, time.Now())
	require.NoError(t, os.WriteFile(path, []byte("not json\n\n"), 0644))
	assert.Equal(t, dir, filepath.Dir(path))

	entries, err = reader.ReadLogs(CategoryError, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "not json", entries[0].Message)
	assert.Equal(t, "info", entries[0].Level)
}

func TestValidCategory(t *testing.T) {
	assert.True(t, ValidCategory(CategoryJob))
	assert.True(t, ValidCategory(CategoryDetection))
	assert.False(t, ValidCategory("download"))
}
