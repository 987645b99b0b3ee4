package domain

import (
	"context"
	"sync/atomic"
)

// CancelReason distinguishes why a cancellation handle was triggered.
// Shutdown-cancel is distinct from a user cancel: temp files are always
// kept on shutdown, but only kept on user cancel when requested.
type CancelReason int

const (
	CancelReasonNone CancelReason = iota
	CancelReasonUser
	CancelReasonShutdown
	CancelReasonPause
)

type cancelCtxKey struct{}

// WithCancelReason attaches a CancelReason to ctx so deep call sites (the
// Download Engine's write path, the Post-Process Pipeline's cleanup stage)
// can distinguish why they were cancelled without threading an extra
// parameter through every function signature.
func WithCancelReason(ctx context.Context, reason CancelReason) context.Context {
	return context.WithValue(ctx, cancelCtxKey{}, reason)
}

// CancelReasonFromContext returns the reason stashed by WithCancelReason,
// or CancelReasonNone if none was set.
func CancelReasonFromContext(ctx context.Context) CancelReason {
	if v, ok := ctx.Value(cancelCtxKey{}).(CancelReason); ok {
		return v
	}
	return CancelReasonNone
}

// CancelHandle is the process-wide addressable handle for a running Job.
// A copy lives in the Supervisor's active-engine map so control
// operations (pause/resume/cancel) can signal the job without touching
// its private task state. The pause flag is separate from cancellation:
// pausing lets in-flight articles finish but stops new dispatch, while
// cancelling aborts at the next yield point.
type CancelHandle struct {
	cancel    context.CancelFunc
	pauseFlag *atomic.Bool
	keepFiles *atomic.Bool
}

// NewCancelHandle derives a cancellable context from parent and returns
// both the context to run the job under and its handle.
func NewCancelHandle(parent context.Context) (context.Context, CancelHandle) {
	ctx, cancel := context.WithCancel(parent)
	h := CancelHandle{
		cancel:    cancel,
		pauseFlag: &atomic.Bool{},
		keepFiles: &atomic.Bool{},
	}
	h.keepFiles.Store(true)
	return ctx, h
}

// Cancel triggers cancellation. keepFiles controls whether the Download
// Engine should leave temp files on disk (always true for shutdown-cancel
// and pause; caller-controlled for user cancel).
func (h CancelHandle) Cancel(keepFiles bool) {
	if h.keepFiles != nil {
		h.keepFiles.Store(keepFiles)
	}
	if h.cancel != nil {
		h.cancel()
	}
}

// Pause sets the cooperative pause flag without cancelling the context.
func (h CancelHandle) Pause(paused bool) {
	if h.pauseFlag != nil {
		h.pauseFlag.Store(paused)
	}
}

// Paused reports the current pause flag.
func (h CancelHandle) Paused() bool {
	return h.pauseFlag != nil && h.pauseFlag.Load()
}

// KeepFiles reports whether temp files should survive cancellation.
func (h CancelHandle) KeepFiles() bool {
	return h.keepFiles == nil || h.keepFiles.Load()
}

// Valid reports whether the handle was constructed via NewCancelHandle.
func (h CancelHandle) Valid() bool {
	return h.cancel != nil
}
