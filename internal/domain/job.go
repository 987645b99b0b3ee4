package domain

import (
	"sync/atomic"
	"time"
)

// JobStatus is the persisted lifecycle state of a Job.
type JobStatus string

const (
	StatusQueued         JobStatus = "queued"
	StatusRunning         JobStatus = "running"
	StatusPaused         JobStatus = "paused"
	StatusPostProcessing JobStatus = "post_processing"
	StatusComplete       JobStatus = "complete"
	StatusFailed         JobStatus = "failed"
	StatusRemoved        JobStatus = "removed"
)

// Priority determines dispatch order. Force bypasses the concurrency permit.
type Priority int

const (
	PriorityLow    Priority = -1
	PriorityNormal Priority = 0
	PriorityHigh   Priority = 1
	PriorityForce  Priority = 2
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityForce:
		return "force"
	default:
		return "normal"
	}
}

// PostProcessMode selects the prefix of the post-process pipeline to run.
type PostProcessMode int

const (
	PostProcessNone PostProcessMode = iota
	PostProcessVerify
	PostProcessRepair
	PostProcessUnpack
	PostProcessUnpackAndCleanup
)

// ParsePostProcessMode maps a config/category string to its mode,
// defaulting to Unpack for an unrecognized or empty value.
func ParsePostProcessMode(s string) PostProcessMode {
	switch s {
	case "none":
		return PostProcessNone
	case "verify":
		return PostProcessVerify
	case "repair":
		return PostProcessRepair
	case "unpack":
		return PostProcessUnpack
	case "unpack_and_cleanup":
		return PostProcessUnpackAndCleanup
	default:
		return PostProcessUnpack
	}
}

// DirectUnpackState tracks mid-download extraction progress.
type DirectUnpackState int

const (
	DirectUnpackInactive DirectUnpackState = iota
	DirectUnpackActive
	DirectUnpackSucceeded
	DirectUnpackCancelledState
)

// Job is a single admitted NZB, identified by a monotonic integer id.
// It is mutated only by its owning Download or Post-Process task and by
// control operations (pause/resume/cancel/priority change).
type Job struct {
	ID       int64
	Name     string
	Category string

	Destination string
	Priority    Priority
	PostProcess PostProcessMode

	Password        string
	JobPasswordList []string
	// LastSuccessfulPassword is the small per-job LRU hint described in
	// the Post-Process Pipeline's password-trial state note.
	LastSuccessfulPassword string

	NZBContentHash string
	NZBMetaName    string

	TotalSize int64

	Status JobStatus

	CreatedAt time.Time
	StartedAt time.Time

	DirectUnpackState    DirectUnpackState
	DirectUnpackExtracted int

	LastError string

	// ArticlesSucceeded/Failed/Total back the Supervisor's every-article-
	// failed check and the DownloadFailed event's article counters. They are not persisted
	// column-for-column; they are reconstructed from the articles table
	// when needed and kept live in memory during a run.
	ArticlesSucceeded atomic.Int64
	ArticlesFailed    atomic.Int64
	ArticlesTotal     atomic.Int64

	// BytesWritten is updated by the Download Engine on every completed
	// article write; read by progress reporting.
	BytesWritten atomic.Int64

	// cancel is populated by the Supervisor when dispatching an Engine
	// for this job; a copy of the handle also lives in the Supervisor's
	// process-wide active-engine map so control operations never touch
	// this field directly from another goroutine without going through
	// that map.
	cancel CancelHandle
}

// SetCancelHandle stores the handle used by control operations.
func (j *Job) SetCancelHandle(h CancelHandle) { j.cancel = h }

// CancelHandle returns the handle, or a zero-value handle if none is set.
func (j *Job) CancelHandle() CancelHandle { return j.cancel }

// IsTerminal reports whether the job has reached a terminal status.
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case StatusComplete, StatusFailed, StatusRemoved:
		return true
	default:
		return false
	}
}

// FailureRatio returns the rolling fraction of resolved articles that have
// permanently failed.
func (j *Job) FailureRatio() float64 {
	succeeded := j.ArticlesSucceeded.Load()
	failed := j.ArticlesFailed.Load()
	resolved := succeeded + failed
	if resolved == 0 {
		return 0
	}
	return float64(failed) / float64(resolved)
}

// ResolvedCount is the number of articles that are no longer pending or
// in-flight (done or permanently failed).
func (j *Job) ResolvedCount() int64 {
	return j.ArticlesSucceeded.Load() + j.ArticlesFailed.Load()
}
