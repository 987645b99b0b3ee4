package extraction

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

func buildZip(t *testing.T, path string, files map[string]string, encrypted bool) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range files {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		if encrypted {
			hdr.Flags |= zipEncryptedFlag
		}
		entry, err := w.CreateHeader(hdr)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestZIPExtractorCanExtractChecksExtensionAndSignature(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.zip")
	buildZip(t, path, map[string]string{"a.txt": "hello"}, false)

	z := NewZIPExtractor()
	ok, err := z.CanExtract(path)
	require.NoError(t, err)
	assert.True(t, ok)

	notZip := filepath.Join(dir, "archive.rar")
	require.NoError(t, os.WriteFile(notZip, []byte("not a zip"), 0644))
	ok, err = z.CanExtract(notZip)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestZIPExtractorExtractsFilesToDestDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.zip")
	buildZip(t, path, map[string]string{"a.txt": "hello", "b.txt": "world"}, false)

	destDir := filepath.Join(dir, "out")
	z := NewZIPExtractor()
	files, err := z.Extract(t.Context(), path, destDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	content, err := os.ReadFile(filepath.Join(destDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}

func TestZIPExtractorReturnsWrongPasswordForEncryptedEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.zip")
	buildZip(t, path, map[string]string{"secret.txt": "shh"}, true)

	z := NewZIPExtractor()
	_, err := z.Extract(t.Context(), path, filepath.Join(dir, "out"), "anypassword")
	assert.ErrorIs(t, err, domain.ErrWrongPassword)
}
