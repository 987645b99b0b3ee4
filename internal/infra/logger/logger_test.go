package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesParentDirectoryAndLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "app.log")

	l, err := New(path, LevelInfo, false)
	require.NoError(t, err)
	defer l.Close()

	assert.FileExists(t, path)
}

func TestLogLevelFiltersBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	l, err := New(path, LevelWarn, false)
	require.NoError(t, err)

	l.Debug("should not appear")
	l.Info("also should not appear")
	l.Warn("this one appears")
	require.NoError(t, l.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "should not appear")
	assert.Contains(t, string(content), "this one appears")
}

func TestCloseIsSafeAfterLogging(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	l, err := New(path, LevelDebug, false)
	require.NoError(t, err)
	l.Info("hello")
	assert.NoError(t, l.Close())
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}
