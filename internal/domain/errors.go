package domain

import (
	"errors"
	"fmt"
)

// Network/NNTP category sentinels, consumed by the Retry Policy's
// classifier and by the Server Pool's failover logic.
var (
	ErrArticleNotFound = errors.New("article not found on this server")
	ErrProviderBusy     = errors.New("all connections to this server are busy")
	ErrAuthFailed       = errors.New("authentication failed")
	ErrProtocolError    = errors.New("nntp protocol error")
	ErrTransient        = errors.New("transient network error")
)

// ErrNoServersConfigured is returned by the Download Engine at dispatch
// time when a job has no eligible servers — Admission still succeeds for
// an empty servers list per the boundary behavior in the testable
// properties section; only dispatch fails.
var ErrNoServersConfigured = errors.New("no servers configured")

// DuplicateAction is the configured response to a duplicate NZB.
type DuplicateAction string

const (
	DuplicateBlock DuplicateAction = "block"
	DuplicateWarn  DuplicateAction = "warn"
	DuplicateAllow DuplicateAction = "allow"
)

// DuplicateError is returned by Admission when duplicate.action = Block.
type DuplicateError struct {
	Method       string // "nzb_hash" | "nzb_name" | "job_name"
	ExistingName string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate detected via %s (matches %q)", e.Method, e.ExistingName)
}

// DiskSpaceError is returned by Admission's disk-space precheck.
type DiskSpaceError struct {
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *DiskSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space: need %d bytes, have %d", e.RequiredBytes, e.AvailableBytes)
}

// PostProcessStage names a stage in the verify/repair/extract/move/cleanup
// pipeline, used to tag stage-failure errors and events.
type PostProcessStage string

const (
	StageVerify  PostProcessStage = "verify"
	StageRepair  PostProcessStage = "repair"
	StageExtract PostProcessStage = "extract"
	StageMove    PostProcessStage = "move"
	StageCleanup PostProcessStage = "cleanup"
)

// StageError is a typed Job-level failure tagged with the stage that
// produced it, per the Post-Process Pipeline's stage failure policy.
type StageError struct {
	Stage     PostProcessStage
	Err       error
	FilesKept bool
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

var (
	ErrWrongPassword              = errors.New("wrong password")
	ErrNoPasswordsAvailable       = errors.New("no passwords available to try")
	ErrAllPasswordsFailed         = errors.New("all candidate passwords failed")
	ErrExtractionFailed           = errors.New("extraction failed")
	ErrInsufficientRecoveryBlocks = errors.New("insufficient recovery blocks")
	ErrInvalidPath                = errors.New("invalid path")
)
