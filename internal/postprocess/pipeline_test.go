package postprocess

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvz-devx/usenet-dl/internal/domain"
	"github.com/jvz-devx/usenet-dl/internal/eventbus"
	"github.com/jvz-devx/usenet-dl/internal/infra/config"
)

func TestResolveCollisionNoExisting(t *testing.T) {
	dir := t.TempDir()
	dst, skip, err := resolveCollision(filepath.Join(dir, "movie.mkv"), "rename")
	require.NoError(t, err)
	assert.False(t, skip)
	assert.Equal(t, filepath.Join(dir, "movie.mkv"), dst)
}

func TestResolveCollisionRename(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "movie.mkv")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0644))

	dst, skip, err := resolveCollision(existing, "rename")
	require.NoError(t, err)
	assert.False(t, skip)
	assert.Equal(t, filepath.Join(dir, "movie (1).mkv"), dst)
}

func TestResolveCollisionSkip(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "movie.mkv")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0644))

	dst, skip, err := resolveCollision(existing, "skip")
	require.NoError(t, err)
	assert.True(t, skip)
	assert.Equal(t, "", dst)
}

func TestResolveCollisionOverwrite(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "movie.mkv")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0644))

	dst, skip, err := resolveCollision(existing, "overwrite")
	require.NoError(t, err)
	assert.False(t, skip)
	assert.Equal(t, existing, dst)
}

func TestMoveFileAcrossDirs(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	src := filepath.Join(srcDir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0644))

	dst := filepath.Join(dstDir, "a.txt")
	require.NoError(t, moveFile(src, dst))

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, dedupe([]string{"a", "a", "b", ""}))
}

func TestMoveRelocatesFilesFromNestedExtractionSubdirectories(t *testing.T) {
	jobDir := t.TempDir()
	destDir := t.TempDir()

	// Simulates Extract having unpacked one archive into its own unique
	// subdirectory, the way it does for every top-level archive.
	archiveOut := filepath.Join(jobDir, "extracted_abc_movie")
	require.NoError(t, os.MkdirAll(archiveOut, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(archiveOut, "movie.mkv"), []byte("video"), 0644))

	// A non-archive file that landed directly in jobDir (no unpack needed).
	require.NoError(t, os.WriteFile(filepath.Join(jobDir, "readme.txt"), []byte("notes"), 0644))

	p := &Pipeline{cfg: &config.Config{FileCollision: "rename"}, bus: eventbus.New(0)}
	job := &domain.Job{ID: 1, Destination: destDir}

	require.NoError(t, p.move(t.Context(), job, jobDir))

	movie, err := os.ReadFile(filepath.Join(destDir, "movie.mkv"))
	require.NoError(t, err)
	assert.Equal(t, "video", string(movie))

	readme, err := os.ReadFile(filepath.Join(destDir, "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "notes", string(readme))
}
