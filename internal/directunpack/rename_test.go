package directunpack

import (
	"crypto/md5"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvz-devx/usenet-dl/internal/domain"
	"github.com/jvz-devx/usenet-dl/internal/eventbus"
	"github.com/jvz-devx/usenet-dl/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "test.db"), filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTryRenameSkipsWhenMetadataNotLoaded(t *testing.T) {
	r := newRenameState()
	got := r.tryRename(1, 0, "obfuscated.bin", t.TempDir(), nil, eventbus.New(0))
	assert.Equal(t, "", got)
}

func TestTryRenameMatchesByHashAndRenamesOnDisk(t *testing.T) {
	tempDir := t.TempDir()
	content := []byte("the real file content, more than nothing")
	currentPath := filepath.Join(tempDir, "obfuscated.bin")
	require.NoError(t, os.WriteFile(currentPath, content, 0644))

	hash := md5.Sum(content)

	r := newRenameState()
	r.hashToName[hash] = "movie.mkv"
	r.metadataLoaded = true

	s := openTestStore(t)
	job := &domain.Job{Name: "job", Status: domain.StatusQueued, CreatedAt: time.Now()}
	require.NoError(t, s.InsertJob(job))
	require.NoError(t, s.InsertFiles(job.ID, []domain.File{{Index: 0, Name: "obfuscated.bin", Size: int64(len(content))}}))

	bus := eventbus.New(0)
	sub := bus.Subscribe()

	got := r.tryRename(job.ID, 0, "obfuscated.bin", tempDir, s, bus)
	assert.Equal(t, "movie.mkv", got)

	_, err := os.Stat(filepath.Join(tempDir, "movie.mkv"))
	assert.NoError(t, err)
	_, err = os.Stat(currentPath)
	assert.True(t, os.IsNotExist(err))

	files, err := s.ListFiles(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "movie.mkv", files[0].Name)
	assert.Equal(t, "obfuscated.bin", files[0].OriginalName)

	evt, _, err := sub.Next(t.Context())
	require.NoError(t, err)
	renamed, ok := evt.(domain.DirectRenamed)
	require.True(t, ok)
	assert.Equal(t, "obfuscated.bin", renamed.OldName)
	assert.Equal(t, "movie.mkv", renamed.NewName)
}

func TestTryRenameReturnsEmptyWhenHashUnknown(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "obfuscated.bin")
	require.NoError(t, os.WriteFile(path, []byte("unmatched content"), 0644))

	r := newRenameState()
	r.hashToName[md5.Sum([]byte("something else"))] = "other.mkv"
	r.metadataLoaded = true

	got := r.tryRename(1, 0, "obfuscated.bin", tempDir, nil, eventbus.New(0))
	assert.Equal(t, "", got)
}

func TestTryRenameReturnsEmptyWhenFileMissing(t *testing.T) {
	r := newRenameState()
	r.hashToName[md5.Sum([]byte("x"))] = "movie.mkv"
	r.metadataLoaded = true

	got := r.tryRename(1, 0, "missing.bin", t.TempDir(), nil, eventbus.New(0))
	assert.Equal(t, "", got)
}
