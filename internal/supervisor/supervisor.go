// Package supervisor owns process lifecycle: startup recovery, the
// dispatch loop that hands queued jobs to Download Engines under a
// concurrency permit, and graceful shutdown.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jvz-devx/usenet-dl/internal/directunpack"
	"github.com/jvz-devx/usenet-dl/internal/domain"
	"github.com/jvz-devx/usenet-dl/internal/engine"
	"github.com/jvz-devx/usenet-dl/internal/eventbus"
	"github.com/jvz-devx/usenet-dl/internal/extraction"
	"github.com/jvz-devx/usenet-dl/internal/infra/config"
	"github.com/jvz-devx/usenet-dl/internal/nntp"
	"github.com/jvz-devx/usenet-dl/internal/postprocess"
	"github.com/jvz-devx/usenet-dl/internal/queue"
	"github.com/jvz-devx/usenet-dl/internal/ratelimiter"
	"github.com/jvz-devx/usenet-dl/internal/retry"
	"github.com/jvz-devx/usenet-dl/internal/store"
)

// ShutdownGrace bounds how long Shutdown waits for active Engines to
// observe their cancel-for-shutdown signal before giving up.
const ShutdownGrace = 30 * time.Second

// HistoryMirror is the optional remote archival sink for completed-job
// History rows. A nil HistoryMirror on the Supervisor means history stays
// local to the Persistence Store, which is the default.
type HistoryMirror interface {
	Append(ctx context.Context, h domain.HistoryEntry) error
}

// activeJob tracks one currently-dispatched Engine so control operations
// and shutdown can reach it without a back-reference from the Job.
type activeJob struct {
	job    *domain.Job
	cancel domain.CancelHandle
	done   chan struct{}
}

// Supervisor is the process-wide owner of the Persistence Store handle
// and the Event Bus sender; every other component receives a shared
// reference to one or the other, never ownership.
type Supervisor struct {
	cfg     *config.Config
	st      *store.Store
	queue   *queue.Queue
	bus     *eventbus.Bus
	limiter *ratelimiter.Limiter
	pool    *nntp.Pool
	retryP  retry.Policy

	pipeline   *postprocess.Pipeline
	dispatcher *extraction.Dispatcher

	historyMirror HistoryMirror

	sem *semaphore.Weighted

	mu     sync.Mutex
	active map[int64]*activeJob
	paused bool

	shuttingDown chan struct{}
	wg           sync.WaitGroup
}

// New builds a Supervisor. Start must be called before it dispatches any
// work.
func New(cfg *config.Config, st *store.Store, q *queue.Queue, bus *eventbus.Bus, limiter *ratelimiter.Limiter,
	pool *nntp.Pool, retryP retry.Policy, pipeline *postprocess.Pipeline, dispatcher *extraction.Dispatcher) *Supervisor {
	concurrency := int64(cfg.MaxConcurrentDownloads)
	if concurrency < 1 {
		concurrency = 1
	}
	return &Supervisor{
		cfg:          cfg,
		st:           st,
		queue:        q,
		bus:          bus,
		limiter:      limiter,
		pool:         pool,
		retryP:       retryP,
		pipeline:     pipeline,
		dispatcher:   dispatcher,
		sem:          semaphore.NewWeighted(concurrency),
		active:       make(map[int64]*activeJob),
		shuttingDown: make(chan struct{}),
	}
}

// SetHistoryMirror attaches an optional remote archival sink. Must be
// called, if at all, before Run starts dispatching jobs.
func (s *Supervisor) SetHistoryMirror(m HistoryMirror) {
	s.historyMirror = m
}

// Recover runs the startup sequence: load non-terminal jobs, demote any
// InFlight articles to Pending, and re-insert the jobs into the Priority
// Queue in their original (priority, created_at) order.
func (s *Supervisor) Recover() error {
	if _, err := s.st.ResetInFlightArticles(); err != nil {
		return fmt.Errorf("resetting in-flight articles: %w", err)
	}

	jobs, err := s.st.ListByStatus(domain.StatusQueued, domain.StatusRunning, domain.StatusPaused, domain.StatusPostProcessing)
	if err != nil {
		return fmt.Errorf("loading active jobs: %w", err)
	}

	for _, j := range jobs {
		if j.Status == domain.StatusRunning || j.Status == domain.StatusPostProcessing {
			j.Status = domain.StatusPaused
			if err := s.st.UpdateJobStatus(j.ID, domain.StatusPaused, j.LastError); err != nil {
				return fmt.Errorf("demoting job %d: %w", j.ID, err)
			}
		}
		if done, failed, total, err := s.st.CountArticlesByStatus(j.ID); err == nil {
			j.ArticlesSucceeded.Store(done)
			j.ArticlesFailed.Store(failed)
			j.ArticlesTotal.Store(total)
		}
		s.queue.Push(j)
	}

	return nil
}

// PauseQueue stops new dispatch without disturbing jobs already running.
// Implements scheduler.QueueController.
func (s *Supervisor) PauseQueue() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.bus.Publish(domain.QueuePaused{})
}

// ResumeQueue re-enables dispatch. Implements scheduler.QueueController.
func (s *Supervisor) ResumeQueue() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.bus.Publish(domain.QueueResumed{})
}

func (s *Supervisor) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Run drives the dispatch loop until ctx is cancelled or Shutdown is
// called. While not shutting down, it waits for the queue to be
// non-empty, unpaused, and a concurrency permit (or Force ticket) to be
// available, then pops the highest-priority job and spawns an Engine for
// it.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shuttingDown:
			return
		case <-ticker.C:
			s.tryDispatchNext(ctx)
		}
	}
}

func (s *Supervisor) tryDispatchNext(ctx context.Context) {
	if s.isPaused() {
		return
	}

	job := s.queue.Peek()
	if job == nil {
		return
	}

	force := job.Priority == domain.PriorityForce
	if !force {
		if !s.sem.TryAcquire(1) {
			return
		}
	}

	job = s.queue.Pop()
	if job == nil {
		if !force {
			s.sem.Release(1)
		}
		return
	}

	s.dispatch(ctx, job, force)
}

func (s *Supervisor) dispatch(parent context.Context, job *domain.Job, forceTicket bool) {
	engineCtx, cancel := domain.NewCancelHandle(parent)
	job.SetCancelHandle(cancel)
	job.Status = domain.StatusRunning
	job.StartedAt = time.Now()
	s.st.UpdateJobStarted(job.ID, job.StartedAt)
	s.st.UpdateJobStatus(job.ID, domain.StatusRunning, "")

	done := make(chan struct{})
	s.mu.Lock()
	s.active[job.ID] = &activeJob{job: job, cancel: cancel, done: done}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer func() {
			s.mu.Lock()
			delete(s.active, job.ID)
			s.mu.Unlock()
			if !forceTicket {
				s.sem.Release(1)
			}
		}()
		s.runJob(engineCtx, job)
	}()
}

func (s *Supervisor) runJob(ctx context.Context, job *domain.Job) {
	jobDir := filepath.Join(s.cfg.TempDir, fmt.Sprintf("%d", job.ID))
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		s.failDownload(job, err)
		return
	}

	files, err := s.st.ListFiles(job.ID)
	if err != nil {
		s.failDownload(job, err)
		return
	}

	eng := engine.New(job, files, jobDir, s.pool, s.limiter, s.bus, s.st, s.retryP)

	var coordResult chan directunpack.Result
	runDirectUnpack := s.cfg.DirectUnpack.Enabled &&
		(job.PostProcess == domain.PostProcessUnpack || job.PostProcess == domain.PostProcessUnpackAndCleanup)

	if runDirectUnpack {
		fileCompleted := make(chan int, 16)
		eng.FileCompleted = fileCompleted
		coord := directunpack.New(job, jobDir, s.cfg, s.bus, s.st, s.dispatcher, fileCompleted)
		coordResult = make(chan directunpack.Result, 1)
		go func() {
			coordResult <- coord.Run(ctx)
		}()
	}

	runErr := eng.Run(ctx)

	if runDirectUnpack {
		<-coordResult
	}

	if runErr != nil {
		if ctx.Err() != nil {
			// Cooperative cancellation (user or shutdown): the job is left
			// in whatever status Cancel/Shutdown already assigned it.
			return
		}
		s.failDownload(job, runErr)
		return
	}

	succeeded := job.ArticlesSucceeded.Load()
	failed := job.ArticlesFailed.Load()
	if failed > 0 && succeeded == 0 {
		s.failDownload(job, domain.ErrTransient)
		return
	}

	s.bus.Publish(domain.DownloadComplete{JobID: job.ID})

	if err := s.pipeline.Run(ctx, job, jobDir); err != nil {
		s.appendHistory(job, job.StartedAt)
		return
	}
	s.appendHistory(job, job.StartedAt)
}

func (s *Supervisor) failDownload(job *domain.Job, err error) {
	job.LastError = err.Error()
	job.Status = domain.StatusFailed
	s.st.UpdateJobStatus(job.ID, domain.StatusFailed, job.LastError)
	s.bus.Publish(domain.DownloadFailed{
		JobID:             job.ID,
		ArticlesSucceeded: job.ArticlesSucceeded.Load(),
		ArticlesFailed:    job.ArticlesFailed.Load(),
		ArticlesTotal:     job.ArticlesTotal.Load(),
		Transient:         false,
	})
	s.appendHistory(job, job.StartedAt)
}

func (s *Supervisor) appendHistory(job *domain.Job, startedAt time.Time) {
	var downloadTimeMS int64
	if !startedAt.IsZero() {
		downloadTimeMS = time.Since(startedAt).Milliseconds()
	}
	entry := domain.HistoryEntry{
		JobID:          job.ID,
		Name:           job.Name,
		Category:       job.Category,
		Destination:    job.Destination,
		Status:         job.Status,
		SizeBytes:      job.TotalSize,
		DownloadTimeMS: downloadTimeMS,
		CompletedAt:    time.Now().Unix(),
	}
	s.st.AppendHistory(entry)

	if s.historyMirror != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			s.historyMirror.Append(ctx, entry)
		}()
	}
}

// Cancel cancels a running or queued job. keepFiles is honored only for
// jobs already dispatched; a still-queued job is simply removed.
func (s *Supervisor) Cancel(jobID int64, keepFiles bool) bool {
	if s.queue.Remove(jobID) {
		s.st.UpdateJobStatus(jobID, domain.StatusRemoved, "")
		return true
	}

	s.mu.Lock()
	a, ok := s.active[jobID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	a.cancel.Cancel(keepFiles)
	a.job.Status = domain.StatusRemoved
	s.st.UpdateJobStatus(jobID, domain.StatusRemoved, "")
	return true
}

// Pause pauses a dispatched job's Engine without cancelling it.
func (s *Supervisor) Pause(jobID int64) bool {
	s.mu.Lock()
	a, ok := s.active[jobID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	a.cancel.Pause(true)
	a.job.Status = domain.StatusPaused
	s.st.UpdateJobStatus(jobID, domain.StatusPaused, "")
	return true
}

// Resume lifts a pause set by Pause.
func (s *Supervisor) Resume(jobID int64) bool {
	s.mu.Lock()
	a, ok := s.active[jobID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	a.cancel.Pause(false)
	a.job.Status = domain.StatusRunning
	s.st.UpdateJobStatus(jobID, domain.StatusRunning, "")
	return true
}

// Reprioritize changes a still-queued job's priority. Has no effect on an
// already-dispatched job.
func (s *Supervisor) Reprioritize(jobID int64, p domain.Priority) bool {
	if s.queue.Reprioritize(jobID, p) {
		s.st.UpdateJobPriority(jobID, p)
		return true
	}
	return false
}

// Shutdown flips the shutdown flag, stops accepting new dispatch,
// cancel-for-shutdown every active Engine (which always keeps temp
// files), waits up to ShutdownGrace for them to finish, publishes a
// Shutdown event on the Event Bus, and closes the store. It writes no job
// statuses of its own: a job still recorded as running is demoted to
// Paused by Recover on the next start.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	close(s.shuttingDown)

	s.mu.Lock()
	actives := make([]*activeJob, 0, len(s.active))
	for _, a := range s.active {
		actives = append(actives, a)
	}
	s.mu.Unlock()

	for _, a := range actives {
		a.cancel.Cancel(true)
	}

	grace := time.NewTimer(ShutdownGrace)
	defer grace.Stop()

	waitAll := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitAll)
	}()

	select {
	case <-waitAll:
	case <-grace.C:
	case <-ctx.Done():
	}

	s.bus.Publish(domain.Shutdown{})
	return s.st.Close()
}
