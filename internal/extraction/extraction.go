// Package extraction unpacks RAR, 7z, and ZIP archives, trying a list of
// candidate passwords and recursing into archives nested inside the
// extracted output.
package extraction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/segmentio/ksuid"
)

// ArchiveType identifies the container format of an archive file.
type ArchiveType string

const (
	ArchiveRAR     ArchiveType = "rar"
	ArchiveSevenZ  ArchiveType = "7z"
	ArchiveZIP     ArchiveType = "zip"
)

// Extractor unpacks one archive format to a destination directory.
type Extractor interface {
	Name() string
	CanExtract(path string) (bool, error)
	Extract(ctx context.Context, archivePath, destDir, password string) ([]string, error)
}

// DetectType classifies path by extension, the same lightweight check
// used before any signature verification.
func DetectType(path string) (ArchiveType, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "rar", "r00":
		return ArchiveRAR, true
	case "7z":
		return ArchiveSevenZ, true
	case "zip":
		return ArchiveZIP, true
	default:
		return "", false
	}
}

// IsArchive reports whether path's extension is in extensions, used to
// decide whether a freshly extracted file should be recursed into.
func IsArchive(path string, extensions []string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	for _, e := range extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// Dispatcher routes an archive to the extractor for its detected type and
// tries each password in turn, recursing into nested archives.
type Dispatcher struct {
	extractors        map[ArchiveType]Extractor
	MaxRecursionDepth int
	ArchiveExtensions []string
}

// NewDispatcher wires the given extractors, keyed by each TypedExtractor's
// Type; the caller passes in the rar, sevenz and zip extractors.
func NewDispatcher(maxDepth int, archiveExtensions []string, extractors ...TypedExtractor) *Dispatcher {
	d := &Dispatcher{
		extractors:        make(map[ArchiveType]Extractor),
		MaxRecursionDepth: maxDepth,
		ArchiveExtensions: archiveExtensions,
	}
	for _, te := range extractors {
		d.extractors[te.Type] = te.Extractor
	}
	return d
}

// TypedExtractor pairs an Extractor with the ArchiveType it handles.
type TypedExtractor struct {
	Type      ArchiveType
	Extractor Extractor
}

// Extract unpacks archivePath to destDir, trying each password in
// passwords until one succeeds, and reports which password that was. An
// empty passwords slice and an unencrypted archive still succeed —
// extractors treat "" as "no password supplied".
func (d *Dispatcher) Extract(ctx context.Context, archivePath, destDir string, passwords []string) ([]string, string, error) {
	archiveType, ok := DetectType(archivePath)
	if !ok {
		return nil, "", fmt.Errorf("%w: unknown archive type for %s", ErrUnknownArchiveType, archivePath)
	}

	ex, ok := d.extractors[archiveType]
	if !ok {
		return nil, "", fmt.Errorf("%w: no extractor registered for %s", ErrUnknownArchiveType, archiveType)
	}

	if len(passwords) == 0 {
		passwords = []string{""}
	}

	var lastErr error
	for _, pw := range passwords {
		files, err := ex.Extract(ctx, archivePath, destDir, pw)
		if err == nil {
			return files, pw, nil
		}
		lastErr = err
		if isWrongPassword(err) {
			continue
		}
		return nil, "", err
	}

	return nil, "", fmt.Errorf("all %d password(s) failed for %s: %w", len(passwords), archivePath, lastErr)
}

// ExtractRecursive extracts archivePath and then, up to MaxRecursionDepth
// times, extracts any archive it finds among the freshly produced files.
// It reports the password that unlocked the top-level archive.
func (d *Dispatcher) ExtractRecursive(ctx context.Context, archivePath, destDir string, passwords []string, depth int) ([]string, string, error) {
	extracted, usedPassword, err := d.Extract(ctx, archivePath, destDir, passwords)
	if err != nil {
		return nil, "", err
	}

	if depth >= d.MaxRecursionDepth {
		return extracted, usedPassword, nil
	}

	all := append([]string{}, extracted...)
	for _, f := range extracted {
		if !IsArchive(f, d.ArchiveExtensions) {
			continue
		}

		// ksuid disambiguates nested extraction directories across archives
		// that happen to contain same-named files at the same recursion
		// depth, which plain name+depth can't.
		nestedDest := filepath.Join(destDir, fmt.Sprintf("nested_%s_%s", ksuid.New().String(), strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))))
		if err := os.MkdirAll(nestedDest, 0755); err != nil {
			continue
		}

		nested, _, err := d.ExtractRecursive(ctx, f, nestedDest, passwords, depth+1)
		if err != nil {
			continue
		}
		all = append(all, nested...)
	}

	return all, usedPassword, nil
}
