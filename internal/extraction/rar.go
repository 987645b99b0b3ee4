package extraction

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

// RAR file signatures (magic bytes).
var rarSignatures = [][]byte{
	{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00},       // RAR 1.5+
	{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00}, // RAR 5.0+
}

// RARExtractor shells out to the system unrar binary.
type RARExtractor struct {
	BinaryPath string
}

// NewRARExtractor resolves the unrar binary, preferring configuredPath
// when it's usable.
func NewRARExtractor(configuredPath string) (*RARExtractor, error) {
	if configuredPath != "" {
		if _, err := exec.LookPath(configuredPath); err == nil {
			return &RARExtractor{BinaryPath: configuredPath}, nil
		}
	}
	path, err := exec.LookPath("unrar")
	if err != nil {
		return nil, fmt.Errorf("unrar binary not found in PATH: %w", err)
	}
	return &RARExtractor{BinaryPath: path}, nil
}

func (r *RARExtractor) Name() string { return "RAR" }

// CanExtract checks the extension, skips all but the first volume of a
// multi-part archive, and verifies the RAR magic bytes.
func (r *RARExtractor) CanExtract(path string) (bool, error) {
	lower := strings.ToLower(filepath.Base(path))
	if !strings.HasSuffix(lower, ".rar") {
		return false, nil
	}

	if strings.Contains(lower, ".part") {
		if !(strings.Contains(lower, ".part01.rar") ||
			strings.Contains(lower, ".part001.rar") ||
			strings.Contains(lower, ".part1.rar")) {
			return false, nil
		}
	}

	return hasRARSignature(path)
}

// Extract runs unrar x into a scratch workdir under destDir, then moves
// every produced file up into destDir directly (dropping any directory
// structure the archive itself created) and removes the scratch dir.
func (r *RARExtractor) Extract(ctx context.Context, archivePath, destDir, password string) ([]string, error) {
	return baseExtract(ctx, archivePath, destDir, func(workDir string) *exec.Cmd {
		args := []string{"x", "-o+", "-y", "-kb"}
		if password != "" {
			args = append(args, "-p"+password)
		} else {
			args = append(args, "-p-")
		}
		args = append(args, archivePath, workDir+string(filepath.Separator))
		return exec.CommandContext(ctx, r.BinaryPath, args...)
	}, password)
}

func hasRARSignature(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	header := make([]byte, 8)
	n, err := f.Read(header)
	if err != nil {
		return false, err
	}
	if n < 7 {
		return false, nil
	}

	for _, sig := range rarSignatures {
		if bytes.Equal(header[:len(sig)], sig) {
			return true, nil
		}
	}
	return false, nil
}

// cmdFactory builds the extraction command given the scratch workdir it
// should write into.
type cmdFactory func(workDir string) *exec.Cmd

// baseExtract runs factory's command into a throwaway subdirectory of
// destDir, then flattens every produced file up into destDir and removes
// the scratch directory. password is not read here (the factory already
// carries it); a nonzero exit is classified as a wrong-password failure
// when the tool's output mentions a password or encryption, otherwise as
// a hard error.
func baseExtract(ctx context.Context, archivePath, destDir string, factory cmdFactory, password string) ([]string, error) {
	workDir := filepath.Join(destDir, "_extract_"+filepath.Base(archivePath))
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("creating extraction workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	cmd := factory(workDir)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if looksLikePasswordError(output) {
			return nil, fmt.Errorf("%w: %s", domain.ErrWrongPassword, archivePath)
		}
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrExtractionFailed, err, string(output))
	}

	var finalPaths []string
	err = filepath.WalkDir(workDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.IsDir() {
			return nil
		}

		target := filepath.Join(destDir, d.Name())
		if err := os.Rename(path, target); err != nil {
			return fmt.Errorf("moving extracted file %s: %w", d.Name(), err)
		}
		finalPaths = append(finalPaths, target)
		return nil
	})

	return finalPaths, err
}

func looksLikePasswordError(output []byte) bool {
	lower := strings.ToLower(string(output))
	return strings.Contains(lower, "password") || strings.Contains(lower, "encrypted") || strings.Contains(lower, "wrong password")
}
