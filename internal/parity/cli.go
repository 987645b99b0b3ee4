package parity

import (
	"context"
	"fmt"
	"os/exec"
)

// CLIHandler drives the par2 command-line tool for verify and repair.
type CLIHandler struct {
	BinaryPath string
}

// NewCLIHandler resolves the par2 binary from PATH, or the explicit path
// if one is given via config.
func NewCLIHandler(configuredPath string) (*CLIHandler, error) {
	if configuredPath != "" {
		if _, err := exec.LookPath(configuredPath); err == nil {
			return &CLIHandler{BinaryPath: configuredPath}, nil
		}
	}
	path, err := exec.LookPath("par2")
	if err != nil {
		return nil, fmt.Errorf("par2 binary not found in PATH: %w", err)
	}
	return &CLIHandler{BinaryPath: path}, nil
}

func (c *CLIHandler) Name() string { return "par2-cli" }

func (c *CLIHandler) Capabilities() Capabilities {
	return Capabilities{CanVerify: true, CanRepair: true}
}

// Verify runs par2 in verify-only mode against every .par2 index file found
// in dir, classifying the exit code the way par2cmdline does: 0 means
// complete, 1 means damaged but recoverable, anything else is a hard error.
func (c *CLIHandler) Verify(ctx context.Context, dir string) (VerifyResult, error) {
	indexes, err := findPar2Indexes(dir)
	if err != nil {
		return VerifyResult{}, err
	}
	if len(indexes) == 0 {
		return VerifyResult{IsComplete: true}, nil
	}

	result := VerifyResult{IsComplete: true, Repairable: true}
	for _, idx := range indexes {
		cmd := exec.CommandContext(ctx, c.BinaryPath, "v", "-q", idx)
		err := cmd.Run()
		if err == nil {
			continue
		}

		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return VerifyResult{}, fmt.Errorf("running par2 verify on %s: %w", idx, err)
		}

		result.IsComplete = false
		result.DamagedBlocks++
		result.DamagedFiles = append(result.DamagedFiles, idx)

		if exitErr.ExitCode() != 1 {
			result.Repairable = false
		}
	}

	return result, nil
}

// Repair runs par2 repair against every .par2 index file in dir.
func (c *CLIHandler) Repair(ctx context.Context, dir string) (RepairResult, error) {
	indexes, err := findPar2Indexes(dir)
	if err != nil {
		return RepairResult{}, err
	}

	result := RepairResult{Success: true}
	for _, idx := range indexes {
		cmd := exec.CommandContext(ctx, c.BinaryPath, "r", idx)
		if err := cmd.Run(); err != nil {
			result.Success = false
			result.FailedFiles = append(result.FailedFiles, idx)
			result.Error = fmt.Errorf("par2 repair on %s: %w", idx, err)
			continue
		}
		result.RepairedFiles = append(result.RepairedFiles, idx)
	}

	return result, nil
}
