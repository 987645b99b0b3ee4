// Package parity implements PAR2 verification and repair, plus a
// pure in-process parser for PAR2 File Description packets used by the
// DirectUnpack Coordinator's DirectRename feature.
package parity

import "context"

// VerifyResult is the outcome of checking a set of files against their
// PAR2 recovery data.
type VerifyResult struct {
	IsComplete              bool
	DamagedBlocks           int
	RecoveryBlocksAvailable int
	Repairable              bool
	DamagedFiles            []string
	MissingFiles            []string
}

// RepairResult is the outcome of attempting a repair.
type RepairResult struct {
	Success       bool
	RepairedFiles []string
	FailedFiles   []string
	Error         error
}

// Capabilities reports what a Handler implementation can do, so the
// Post-Process Pipeline can skip stages gracefully when par2 isn't
// installed rather than fail the job.
type Capabilities struct {
	CanVerify bool
	CanRepair bool
}

// Handler abstracts PAR2 verification/repair so the pipeline can fall
// back to NoOp when the par2 binary isn't on PATH.
type Handler interface {
	Verify(ctx context.Context, dir string) (VerifyResult, error)
	Repair(ctx context.Context, dir string) (RepairResult, error)
	Capabilities() Capabilities
	Name() string
}
