package extraction

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"context"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

// ZIP file signatures (magic bytes).
var zipSignatures = [][]byte{
	{0x50, 0x4B, 0x03, 0x04}, // standard
	{0x50, 0x4B, 0x05, 0x06}, // empty
	{0x50, 0x4B, 0x07, 0x08}, // spanned
}

// zipEncryptedFlag is bit 0 of a local file header's general purpose
// flag field, set when the entry uses traditional PKWARE or AES
// encryption that archive/zip cannot decode.
const zipEncryptedFlag = 0x1

// ZIPExtractor unpacks ZIP archives entirely in-process via the standard
// library, unlike RAR and 7z which shell out to external tools.
type ZIPExtractor struct{}

func NewZIPExtractor() *ZIPExtractor { return &ZIPExtractor{} }

func (z *ZIPExtractor) Name() string { return "ZIP" }

func (z *ZIPExtractor) CanExtract(path string) (bool, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".zip") {
		return false, nil
	}
	return hasZIPSignature(path)
}

// Extract unpacks archivePath into destDir using archive/zip. Password is
// only meaningful for the wrong-password error path: this stdlib reader
// cannot decrypt ZipCrypto or AES entries, so an encrypted archive always
// yields ErrWrongPassword regardless of what was supplied, signalling the
// pipeline to fall through to an external handler rather than silently
// produce garbage.
func (z *ZIPExtractor) Extract(ctx context.Context, archivePath, destDir, password string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", domain.ErrExtractionFailed, archivePath, err)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("creating destination: %w", err)
	}

	var out []string
	for _, f := range r.File {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if f.Flags&zipEncryptedFlag != 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrWrongPassword, archivePath)
		}

		target := filepath.Join(destDir, filepath.Base(f.Name))
		if f.FileInfo().IsDir() {
			continue
		}

		if err := extractZipEntry(f, target); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrExtractionFailed, f.Name, err)
		}
		out = append(out, target)
	}

	return out, nil
}

func extractZipEntry(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

func hasZIPSignature(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	header := make([]byte, 4)
	n, err := f.Read(header)
	if err != nil {
		return false, err
	}
	if n < 4 {
		return false, nil
	}

	for _, sig := range zipSignatures {
		if bytes.Equal(header, sig) {
			return true, nil
		}
	}
	return false, nil
}
