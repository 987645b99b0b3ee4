package extraction

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// SevenZipExtractor shells out to the system 7z binary. No pure-Go 7z
// decoder is wired in, so this format stays CLI-backed like RAR.
type SevenZipExtractor struct {
	BinaryPath string
}

func NewSevenZipExtractor(configuredPath string) (*SevenZipExtractor, error) {
	if configuredPath != "" {
		if _, err := exec.LookPath(configuredPath); err == nil {
			return &SevenZipExtractor{BinaryPath: configuredPath}, nil
		}
	}
	for _, candidate := range []string{"7z", "7za", "7zr"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return &SevenZipExtractor{BinaryPath: path}, nil
		}
	}
	return nil, fmt.Errorf("no 7z binary found in PATH")
}

func (s *SevenZipExtractor) Name() string { return "7z" }

func (s *SevenZipExtractor) CanExtract(path string) (bool, error) {
	return strings.EqualFold(filepath.Ext(path), ".7z"), nil
}

// Extract runs 7z x -y -o<dest> into a scratch workdir and flattens the
// result the same way RARExtractor does.
func (s *SevenZipExtractor) Extract(ctx context.Context, archivePath, destDir, password string) ([]string, error) {
	return baseExtract(ctx, archivePath, destDir, func(workDir string) *exec.Cmd {
		args := []string{"x", "-y", "-o" + workDir}
		if password != "" {
			args = append(args, "-p"+password)
		} else {
			args = append(args, "-p-")
		}
		args = append(args, archivePath)
		return exec.CommandContext(ctx, s.BinaryPath, args...)
	}, password)
}
